// Package webhook routes raw deliveries to the platform handler that
// accepts them.
package webhook

import (
	"context"

	"storehook/pkg/models"
)

// Validated is what a handler hands from Validate to Process: claims that
// already passed decoding and, where the platform signs, verification.
type Validated struct {
	Claims map[string]interface{}
	// Signed is true when Claims came out of a verified envelope.
	Signed bool
	// NotificationID is a delivery id found outside the claims, e.g. a
	// Pub/Sub messageId.
	NotificationID string
}

// Handler is one platform's capability pair. Validate returns a non-nil
// error carrying the rejection reason when the payload is not for this
// handler or fails verification. Process never fails: anything Validate
// accepted maps to a CanonicalEvent.
type Handler interface {
	Platform() string
	Validate(ctx context.Context, raw []byte) (Validated, error)
	Process(ctx context.Context, v Validated) models.CanonicalEvent
}
