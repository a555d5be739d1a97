package googleplay

import (
	"context"
	"encoding/base64"
	"strings"

	"storehook/internal/constants"
	"storehook/internal/envelope"
	"storehook/internal/logger"
	"storehook/internal/platform"
	"storehook/internal/webhook"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/models"
)

const (
	fieldMessage   = "message"
	fieldData      = "data"
	fieldMessageID = "messageId"
)

type Config struct {
	// UnwrapPubSub accepts Pub/Sub push bodies and reads the notification
	// from message.data.
	UnwrapPubSub bool
}

// Handler accepts plain JSON notifications. Play does not sign them; the
// push endpoint is expected to be authenticated upstream.
type Handler struct {
	cfg Config
	log logger.Logger
}

func NewHandler(cfg Config, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Handler{cfg: cfg, log: log}
}

func (h *Handler) Platform() string {
	return constants.PlatformGooglePlay
}

func (h *Handler) Validate(ctx context.Context, raw []byte) (webhook.Validated, error) {
	body, err := envelope.DecodeJSON(raw)
	if err != nil {
		return webhook.Validated{}, err
	}

	var messageID string
	if h.cfg.UnwrapPubSub && isPushMessage(body) {
		message := platform.Object(body, fieldMessage)
		messageID = platform.String(message, fieldMessageID)

		body, err = unwrapPushMessage(message)
		if err != nil {
			return webhook.Validated{}, err
		}
		h.log.DebugwCtx(ctx, "Unwrapped Pub/Sub push message", "message_id", messageID)
	}

	if !HasKnownShape(body) {
		return webhook.Validated{}, apperrors.ErrUnsupportedShape.WithDetail("message",
			"expected one of subscriptionNotification, oneTimeProductNotification, testNotification")
	}

	return webhook.Validated{Claims: body, NotificationID: messageID}, nil
}

func (h *Handler) Process(ctx context.Context, v webhook.Validated) models.CanonicalEvent {
	event := Classify(v.Claims)
	switch event.Status {
	case models.StatusIgnored:
		h.log.WarnwCtx(ctx, "Unknown Google Play notification type",
			"event_type", event.EventType,
			"raw_type", event.RawType,
		)
	case models.StatusFailed:
		h.log.WarnwCtx(ctx, "Google Play notification matched no known shape")
	}
	return event
}

func isPushMessage(body map[string]interface{}) bool {
	return platform.Object(body, fieldMessage) != nil && !HasKnownShape(body)
}

func unwrapPushMessage(message map[string]interface{}) (map[string]interface{}, error) {
	encoded := platform.String(message, fieldData)
	if encoded == "" {
		return nil, apperrors.ErrMalformedEnvelope.WithDetail("message", "push message has no data")
	}

	data, err := decodeBase64(encoded)
	if err != nil {
		return nil, apperrors.ErrMalformedEnvelope.WithCause(err)
	}

	return envelope.DecodeJSON(data)
}

// decodeBase64 accepts standard or URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "-_") {
		return base64.RawURLEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
