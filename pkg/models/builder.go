package models

import (
	"time"

	"github.com/google/uuid"
)

type EventEnvelopeBuilder struct {
	envelope *EventEnvelope
}

func NewEventEnvelopeBuilder(event CanonicalEvent) *EventEnvelopeBuilder {
	return &EventEnvelopeBuilder{
		envelope: &EventEnvelope{
			Event:  event,
			Source: event.Platform,
		},
	}
}

func (b *EventEnvelopeBuilder) WithID(id string) *EventEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *EventEnvelopeBuilder) WithSource(source string) *EventEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *EventEnvelopeBuilder) WithTimestamp(timestamp time.Time) *EventEnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *EventEnvelopeBuilder) WithTraceID(traceID string) *EventEnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

func (b *EventEnvelopeBuilder) WithRequestID(requestID string) *EventEnvelopeBuilder {
	b.envelope.Metadata.RequestID = requestID
	return b
}

func (b *EventEnvelopeBuilder) WithDeliveryHash(hash string) *EventEnvelopeBuilder {
	b.envelope.Metadata.DeliveryHash = hash
	return b
}

// Build fills a random id and the current time when they were not set.
func (b *EventEnvelopeBuilder) Build() *EventEnvelope {
	if b.envelope.ID == "" {
		b.envelope.ID = uuid.NewString()
	}
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now().UTC()
	}
	return b.envelope
}
