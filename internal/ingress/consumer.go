package ingress

import (
	"context"
	"errors"

	"storehook/internal/broker"
	"storehook/internal/constants"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/logging"
	"storehook/pkg/retry"
)

// ConsumeHandler bridges raw deliveries read from the input topic into the
// pipeline. The optional platform header skips trial dispatch. Transient
// failures are returned as retryable so the consumer backs off; rejections
// are permanent and end up in the DLQ.
func ConsumeHandler(pipeline *Pipeline) broker.HandlerFunc {
	return func(ctx context.Context, msg broker.Message) error {
		platform := msg.Header(constants.HeaderPlatform)
		if platform != "" {
			ctx = logging.WithPlatform(ctx, platform)
		}

		_, err := pipeline.Process(ctx, platform, msg.Value)
		if err == nil {
			return nil
		}
		if transient(err) {
			return retry.NewRetryableError(err)
		}
		return err
	}
}

func transient(err error) bool {
	return errors.Is(err, apperrors.ErrKeyFetchFailed) || errors.Is(err, apperrors.ErrServiceUnavailable)
}
