package appstore

import (
	"context"

	"storehook/internal/constants"
	"storehook/internal/envelope"
	"storehook/internal/logger"
	"storehook/internal/platform"
	"storehook/internal/webhook"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/models"
)

// Verifier is the part of envelope.Verifier the handler needs.
type Verifier interface {
	Verify(ctx context.Context, token string) (map[string]interface{}, error)
	Enabled() bool
}

type Handler struct {
	verifier Verifier
	log      logger.Logger
}

// NewHandler builds the App Store handler. A nil verifier decodes signed
// envelopes without checking them and accepts the plain test shape.
func NewHandler(verifier Verifier, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Handler{verifier: verifier, log: log}
}

func (h *Handler) Platform() string {
	return constants.PlatformAppStore
}

func (h *Handler) verifying() bool {
	return h.verifier != nil && h.verifier.Enabled()
}

// Validate accepts a signedPayload envelope that verifies, or, with
// verification off, a plain body carrying notificationType.
func (h *Handler) Validate(ctx context.Context, raw []byte) (webhook.Validated, error) {
	decoded, err := envelope.Decode(raw)
	if err != nil {
		return webhook.Validated{}, err
	}

	if decoded.Signed() {
		return h.validateSigned(ctx, decoded)
	}

	if !platform.Has(decoded.Body, fieldNotificationType) {
		return webhook.Validated{}, apperrors.ErrUnsupportedShape.WithDetail("message", "notificationType is missing")
	}
	if h.verifying() {
		return webhook.Validated{}, apperrors.ErrSignatureRequired
	}

	return webhook.Validated{Claims: decoded.Body}, nil
}

func (h *Handler) validateSigned(ctx context.Context, decoded envelope.DecodeResult) (webhook.Validated, error) {
	claims := decoded.Segments.Claims
	if h.verifier != nil {
		verified, err := h.verifier.Verify(ctx, decoded.Token)
		if err != nil {
			h.log.DebugwCtx(ctx, "Signed envelope rejected",
				"kid", decoded.Segments.KeyID(),
				"reason", apperrors.ReasonCode(err),
			)
			return webhook.Validated{}, err
		}
		claims = verified
	}

	if !platform.Has(claims, fieldNotificationType) {
		return webhook.Validated{}, apperrors.ErrUnsupportedShape.WithDetail("message", "signed claims carry no notificationType")
	}

	return webhook.Validated{Claims: claims, Signed: h.verifying()}, nil
}

func (h *Handler) Process(ctx context.Context, v webhook.Validated) models.CanonicalEvent {
	event := Classify(v.Claims)
	if event.Status == models.StatusIgnored {
		h.log.WarnwCtx(ctx, "Unknown App Store notification type",
			"raw_type", event.RawType,
		)
	}
	return event
}
