package ingress

import (
	"context"
	"errors"

	"storehook/internal/deduplication"
	"storehook/internal/logger"
	"storehook/internal/publisher"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/models"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) (models.CanonicalEvent, error)
	DispatchTo(ctx context.Context, platform string, raw []byte) (models.CanonicalEvent, error)
}

type Deduplicator interface {
	Claim(ctx context.Context, event models.CanonicalEvent, raw []byte) (deduplication.Claim, error)
	Release(ctx context.Context, claim deduplication.Claim) error
	DeliveryHash(event models.CanonicalEvent, raw []byte) string
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.CanonicalEvent, meta publisher.Meta) (publisher.Result, error)
}

// Outcome is the result of one delivery that passed verification.
type Outcome struct {
	Event     models.CanonicalEvent
	Duplicate bool
	Published bool
}

// Pipeline runs a raw delivery through dispatch, dedupe and publishing.
// Dedupe and publishing are optional.
type Pipeline struct {
	dispatcher Dispatcher
	dedup      Deduplicator
	publisher  EventPublisher
	logger     logger.Logger
}

func NewPipeline(dispatcher Dispatcher, dedup Deduplicator, pub EventPublisher, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Pipeline{
		dispatcher: dispatcher,
		dedup:      dedup,
		publisher:  pub,
		logger:     log,
	}
}

// Process dispatches raw, by trial when platform is empty. A delivery whose
// publish fails has its dedupe claim released so the platform's retry is
// processed again.
func (p *Pipeline) Process(ctx context.Context, platform string, raw []byte) (Outcome, error) {
	var (
		event models.CanonicalEvent
		err   error
	)
	if platform == "" {
		event, err = p.dispatcher.Dispatch(ctx, raw)
	} else {
		event, err = p.dispatcher.DispatchTo(ctx, platform, raw)
	}
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Event: event}
	meta := publisher.Meta{}

	var claim deduplication.Claim
	if p.dedup != nil {
		claim, err = p.dedup.Claim(ctx, event, raw)
		if err != nil {
			return out, err
		}
		if claim.Duplicate {
			p.logger.InfowCtx(ctx, "Duplicate delivery acknowledged",
				"platform", event.Platform,
				"event_type", event.EventType,
				"notification_id", event.NotificationID,
			)
			out.Duplicate = true
			return out, nil
		}
		meta.DeliveryHash = claim.Hash
	}

	p.logger.InfowCtx(ctx, "Subscription webhook received",
		"platform", event.Platform,
		"event_type", event.EventType,
		"event_status", event.Status,
		"subscription_id", event.SubscriptionID,
	)

	if p.publisher == nil {
		return out, nil
	}

	res, err := p.publisher.Publish(ctx, event, meta)
	if err != nil {
		if p.dedup != nil {
			if releaseErr := p.dedup.Release(ctx, claim); releaseErr != nil {
				err = errors.Join(err, releaseErr)
			}
		}
		return out, apperrors.ErrServiceUnavailable.WithCause(err).WithDetail("message", "event could not be published")
	}
	out.Published = res.Published
	return out, nil
}
