package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"storehook/internal/constants"
	"storehook/internal/logger"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/logging"
	"storehook/pkg/metrics"
	"storehook/pkg/models"
	"storehook/pkg/tracing"
)

// State names the dispatch stages in logs and spans. Decoding and
// verifying both happen inside a handler's Validate.
type State string

const (
	StateReceived    State = "received"
	StateValidating  State = "validating"
	StateClassifying State = "classifying"
	StateAccepted    State = "accepted"
	StateRejected    State = "rejected"
)

const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	platformUnknown = "unknown"
)

var aliases = map[string]string{
	"apple":  constants.PlatformAppStore,
	"google": constants.PlatformGooglePlay,
}

// Dispatcher holds a fixed, ordered list of handlers. It keeps no state
// between calls.
type Dispatcher struct {
	handlers []Handler
	byName   map[string]Handler
	log      logger.Logger
	now      func() time.Time
}

func NewDispatcher(log logger.Logger, handlers ...Handler) *Dispatcher {
	if log == nil {
		log = logger.NopLogger()
	}

	byName := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		byName[h.Platform()] = h
	}

	return &Dispatcher{
		handlers: append([]Handler(nil), handlers...),
		byName:   byName,
		log:      log,
		now:      time.Now,
	}
}

// Platforms returns the registered platforms in dispatch order.
func (d *Dispatcher) Platforms() []string {
	names := make([]string, 0, len(d.handlers))
	for _, h := range d.handlers {
		names = append(names, h.Platform())
	}
	return names
}

// Dispatch tries every handler in registration order. The first one whose
// Validate succeeds owns the delivery. When none does, the error is
// NO_HANDLER_MATCHED joined with each handler's reason.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (event models.CanonicalEvent, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "webhook.Dispatch", attribute.Int("payload.size", len(raw)))
	defer func() { tracing.EndSpan(span, err) }()

	d.log.DebugwCtx(ctx, "Delivery received", "state", StateReceived, "size", len(raw))

	reasons := make([]error, 0, len(d.handlers))
	for _, h := range d.handlers {
		hctx := logging.WithPlatform(ctx, h.Platform())
		d.log.DebugwCtx(hctx, "Trying handler", "state", StateValidating)

		v, verr := h.Validate(hctx, raw)
		if verr == nil {
			span.SetAttributes(attribute.String("platform", h.Platform()))
			return d.accept(hctx, h, v, start), nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			err = apperrors.ErrTimeout.WithCause(ctxErr)
			d.reject(ctx, platformUnknown, err, start)
			return models.CanonicalEvent{}, err
		}

		d.log.DebugwCtx(hctx, "Handler declined delivery",
			"state", StateValidating,
			"reason", apperrors.ReasonCode(verr),
		)
		reasons = append(reasons, fmt.Errorf("%s: %w", h.Platform(), verr))
	}

	err = apperrors.ErrNoHandlerMatched.WithCause(errors.Join(reasons...))
	d.reject(ctx, platformUnknown, err, start)
	return models.CanonicalEvent{}, err
}

// DispatchTo skips trial validation and hands raw to the named platform.
// "apple" and "google" are accepted as aliases.
func (d *Dispatcher) DispatchTo(ctx context.Context, platform string, raw []byte) (event models.CanonicalEvent, err error) {
	start := time.Now()
	name := normalizePlatform(platform)

	ctx, span := tracing.StartSpan(ctx, "webhook.DispatchTo", attribute.String("platform", name))
	defer func() { tracing.EndSpan(span, err) }()

	h, ok := d.byName[name]
	if !ok {
		err = apperrors.ErrUnknownPlatform.WithDetail("platform", platform)
		d.reject(ctx, platformUnknown, err, start)
		return models.CanonicalEvent{}, err
	}

	ctx = logging.WithPlatform(ctx, name)
	d.log.DebugwCtx(ctx, "Delivery received", "state", StateReceived, "size", len(raw))
	d.log.DebugwCtx(ctx, "Validating delivery", "state", StateValidating)

	v, err := h.Validate(ctx, raw)
	if err != nil {
		d.reject(ctx, name, err, start)
		return models.CanonicalEvent{}, err
	}
	return d.accept(ctx, h, v, start), nil
}

func (d *Dispatcher) accept(ctx context.Context, h Handler, v Validated, start time.Time) models.CanonicalEvent {
	d.log.DebugwCtx(ctx, "Classifying delivery", "state", StateClassifying, "signed", v.Signed)

	event := h.Process(ctx, v)
	if event.Platform == "" {
		event.Platform = h.Platform()
	}
	if event.NotificationID == "" {
		event.NotificationID = v.NotificationID
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = d.now().UTC()
	}

	metrics.IncDelivery(event.Platform, outcomeAccepted)
	metrics.IncEvent(event.Platform, event.EventType, string(event.Status))
	metrics.ObserveDispatchDuration(event.Platform, outcomeAccepted, time.Since(start))

	d.log.DebugwCtx(ctx, "Delivery accepted",
		"state", StateAccepted,
		"event_type", event.EventType,
		"event_status", event.Status,
		"subscription_id", event.SubscriptionID,
	)
	return event
}

func (d *Dispatcher) reject(ctx context.Context, platform string, err error, start time.Time) {
	reason := apperrors.ReasonCode(err)

	metrics.IncDelivery(platform, outcomeRejected)
	metrics.IncRejection(reason)
	metrics.ObserveDispatchDuration(platform, outcomeRejected, time.Since(start))

	d.log.DebugwCtx(ctx, "Delivery rejected",
		"state", StateRejected,
		"reason", reason,
		"error", err,
	)
}

func normalizePlatform(platform string) string {
	name := strings.ToLower(strings.TrimSpace(platform))
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return name
}
