package models

import "time"

// EventStatus is the ternary outcome of classifying verified claims.
type EventStatus string

const (
	// StatusSuccess: the notification type mapped to a canonical tag.
	StatusSuccess EventStatus = "success"
	// StatusIgnored: the shape is recognized but the sub-type is not.
	StatusIgnored EventStatus = "ignored"
	// StatusFailed: the owning platform recognized none of its shapes.
	StatusFailed EventStatus = "failed"
)

const EventTypeUnknown = "unknown"

// CanonicalEvent is the platform-neutral result of one accepted delivery.
type CanonicalEvent struct {
	Status         EventStatus            `json:"status"`
	EventType      string                 `json:"event_type"`
	SubscriptionID string                 `json:"subscription_id,omitempty"`
	Payload        map[string]interface{} `json:"payload"`
	Platform       string                 `json:"platform"`
	RawType        string                 `json:"raw_type,omitempty"`
	NotificationID string                 `json:"notification_id,omitempty"`
	ReceivedAt     time.Time              `json:"received_at"`
}

func (e CanonicalEvent) IsSuccess() bool {
	return e.Status == StatusSuccess
}

// Fields flattens the event for CEL evaluation and structured logs.
func (e CanonicalEvent) Fields() map[string]interface{} {
	payload := e.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return map[string]interface{}{
		"status":          string(e.Status),
		"event_type":      e.EventType,
		"subscription_id": e.SubscriptionID,
		"platform":        e.Platform,
		"raw_type":        e.RawType,
		"notification_id": e.NotificationID,
		"payload":         payload,
	}
}
