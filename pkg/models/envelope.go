package models

import "time"

// EventEnvelope is the record published to the output topic.
type EventEnvelope struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Event     CanonicalEvent `json:"event"`
	Metadata  Metadata       `json:"metadata"`
}

type Metadata struct {
	TraceID      string `json:"trace_id,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	DeliveryHash string `json:"delivery_hash,omitempty"`
}

// PartitionKey keeps every event of one subscription on one partition.
// Events without a subscription id fall back to the envelope id.
func (e *EventEnvelope) PartitionKey() string {
	if e.Event.SubscriptionID != "" {
		return e.Event.Platform + ":" + e.Event.SubscriptionID
	}
	return e.ID
}
