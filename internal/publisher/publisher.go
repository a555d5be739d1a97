package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"storehook/internal/broker"
	"storehook/internal/config"
	"storehook/internal/constants"
	"storehook/internal/logger"
	"storehook/pkg/cel"
	"storehook/pkg/logging"
	"storehook/pkg/metrics"
	"storehook/pkg/models"
	"storehook/pkg/tracing"
)

const (
	outcomePublished = "published"
	outcomeSkipped   = "skipped"
	outcomeFiltered  = "filtered"
	outcomeFailed    = "failed"
)

// Meta is delivery metadata carried on the published envelope.
type Meta struct {
	DeliveryHash string
}

// Result reports what happened to one event.
type Result struct {
	Published  bool
	Outcome    string
	EnvelopeID string
}

// Publisher writes accepted canonical events to the output topic. Without a
// producer every event is reported as skipped.
type Publisher struct {
	producer       broker.Producer
	topic          string
	filter         *cel.Filter
	publishIgnored bool
	logger         logger.Logger
}

func New(producer broker.Producer, topic string, cfg config.PublishingConfig, log logger.Logger) (*Publisher, error) {
	if log == nil {
		log = logger.NopLogger()
	}
	if topic == "" {
		topic = constants.DefaultOutputTopic
	}

	p := &Publisher{
		producer:       producer,
		topic:          topic,
		publishIgnored: cfg.PublishIgnored,
		logger:         log,
	}

	if cfg.Filter != "" {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
		}
		filter, err := evaluator.CompileFilter(cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("invalid publishing filter: %w", err)
		}
		p.filter = filter
	}

	return p, nil
}

func (p *Publisher) Enabled() bool {
	return p.producer != nil
}

func (p *Publisher) Publish(ctx context.Context, event models.CanonicalEvent, meta Meta) (res Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "publisher.Publish")
	defer func() { tracing.EndSpan(span, err) }()

	if p.producer == nil {
		return p.skip(outcomeSkipped), nil
	}
	if !event.IsSuccess() && !p.publishIgnored {
		p.logger.DebugwCtx(ctx, "Event not published",
			"status", event.Status,
			"event_type", event.EventType,
		)
		return p.skip(outcomeSkipped), nil
	}
	if !p.passesFilter(ctx, event) {
		return p.skip(outcomeFiltered), nil
	}

	envelope := models.NewEventEnvelopeBuilder(event).
		WithTraceID(logging.GetTraceID(ctx)).
		WithRequestID(logging.GetRequestID(ctx)).
		WithDeliveryHash(meta.DeliveryHash).
		Build()

	value, err := json.Marshal(envelope)
	if err != nil {
		metrics.IncPublished(outcomeFailed)
		return Result{Outcome: outcomeFailed}, fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	err = p.producer.Publish(ctx, broker.Message{
		Topic: p.topic,
		Key:   []byte(envelope.PartitionKey()),
		Value: value,
		Headers: map[string]string{
			constants.HeaderPlatform:  event.Platform,
			constants.HeaderRequestID: envelope.Metadata.RequestID,
			"event_type":              event.EventType,
		},
		Time: envelope.Timestamp,
	})
	if err != nil {
		metrics.IncPublished(outcomeFailed)
		p.logger.ErrorwCtx(ctx, "Failed to publish event",
			"error", err,
			"topic", p.topic,
			"envelope_id", envelope.ID,
		)
		return Result{Outcome: outcomeFailed, EnvelopeID: envelope.ID}, err
	}

	metrics.IncPublished(outcomePublished)
	p.logger.InfowCtx(ctx, "Event published",
		"topic", p.topic,
		"envelope_id", envelope.ID,
		"event_type", event.EventType,
		"subscription_id", event.SubscriptionID,
	)
	return Result{Published: true, Outcome: outcomePublished, EnvelopeID: envelope.ID}, nil
}

func (p *Publisher) skip(outcome string) Result {
	metrics.IncPublished(outcome)
	return Result{Outcome: outcome}
}

// passesFilter lets an event through when the filter cannot be evaluated
// for it.
func (p *Publisher) passesFilter(ctx context.Context, event models.CanonicalEvent) bool {
	if p.filter == nil {
		return true
	}

	ok, err := p.filter.Matches(ctx, event)
	if err != nil {
		metrics.FallbackUsageTotal.WithLabelValues("publisher", "allow_on_error", "evaluation_error").Inc()
		p.logger.WarnwCtx(ctx, "Filter evaluation error, publishing event (fallback: allow)",
			"filter", p.filter.Expression(),
			"error", err,
		)
		return true
	}
	if !ok {
		p.logger.DebugwCtx(ctx, "Filter dropped event",
			"filter", p.filter.Expression(),
			"event_type", event.EventType,
		)
	}
	return ok
}
