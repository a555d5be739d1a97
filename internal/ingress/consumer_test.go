package ingress

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storehook/internal/broker"
	"storehook/internal/config"
	"storehook/internal/constants"
	"storehook/internal/platform/appstore"
	"storehook/internal/platform/googleplay"
	"storehook/internal/publisher"
	"storehook/internal/webhook"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/retry"
)

func TestConsumeHandler(t *testing.T) {
	dispatcher := webhook.NewDispatcher(nil,
		appstore.NewHandler(nil, nil),
		googleplay.NewHandler(googleplay.Config{}, nil),
	)
	producer := &fakeProducer{}
	pub, err := publisher.New(producer, "events", config.PublishingConfig{}, nil)
	require.NoError(t, err)
	handle := ConsumeHandler(NewPipeline(dispatcher, nil, pub, nil))

	t.Run("publishes accepted delivery", func(t *testing.T) {
		err := handle(context.Background(), broker.Message{
			Value: []byte(`{"oneTimeProductNotification":{"notificationType":1,"purchaseToken":"otp"}}`),
		})
		require.NoError(t, err)
		require.Len(t, producer.messages, 1)
		assert.Equal(t, "googleplay", producer.messages[0].Header(constants.HeaderPlatform))
	})

	t.Run("platform header routes directly", func(t *testing.T) {
		err := handle(context.Background(), broker.Message{
			Value:   []byte(`{"testNotification":{}}`),
			Headers: map[string]string{constants.HeaderPlatform: "apple"},
		})
		assert.ErrorIs(t, err, apperrors.ErrUnsupportedShape)
	})

	t.Run("rejection is permanent", func(t *testing.T) {
		err := handle(context.Background(), broker.Message{Value: []byte(`[]`)})
		require.Error(t, err)

		var retryable retry.RetryableError
		require.True(t, errors.As(err, &retryable))
		assert.False(t, retryable.IsRetryable())
	})
}

func TestConsumeHandler_KeyFetchFailureIsRetryable(t *testing.T) {
	keyFetch := apperrors.ErrNoHandlerMatched.WithCause(errors.Join(
		apperrors.ErrVerificationFailed.WithCause(apperrors.ErrKeyFetchFailed),
	))
	handle := ConsumeHandler(NewPipeline(stubDispatcher{err: keyFetch}, nil, nil, nil))

	err := handle(context.Background(), broker.Message{Value: []byte(`{}`)})
	require.Error(t, err)

	var retryable retry.RetryableError
	require.True(t, errors.As(err, &retryable))
	assert.True(t, retryable.IsRetryable())
	assert.ErrorIs(t, err, apperrors.ErrKeyFetchFailed)
}
