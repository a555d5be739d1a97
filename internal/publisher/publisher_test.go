package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storehook/internal/broker"
	"storehook/internal/config"
	"storehook/internal/constants"
	"storehook/pkg/logging"
	"storehook/pkg/models"
)

type fakeProducer struct {
	messages []broker.Message
	err      error
}

func (p *fakeProducer) Publish(_ context.Context, msg broker.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func renewalEvent() models.CanonicalEvent {
	return models.CanonicalEvent{
		Status:         models.StatusSuccess,
		EventType:      "renewal",
		SubscriptionID: "1000000123",
		Platform:       constants.PlatformAppStore,
		Payload:        map[string]interface{}{"notificationType": "RENEWAL"},
	}
}

func TestPublisher_PublishesEnvelope(t *testing.T) {
	producer := &fakeProducer{}
	p, err := New(producer, "events", config.PublishingConfig{}, nil)
	require.NoError(t, err)

	ctx := logging.WithRequestID(context.Background(), "req-1")
	res, err := p.Publish(ctx, renewalEvent(), Meta{DeliveryHash: "abc"})
	require.NoError(t, err)
	assert.True(t, res.Published)
	assert.NotEmpty(t, res.EnvelopeID)

	require.Len(t, producer.messages, 1)
	msg := producer.messages[0]
	assert.Equal(t, "events", msg.Topic)
	assert.Equal(t, "appstore:1000000123", string(msg.Key))
	assert.Equal(t, "appstore", msg.Header(constants.HeaderPlatform))
	assert.Equal(t, "req-1", msg.Header(constants.HeaderRequestID))

	var envelope models.EventEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &envelope))
	assert.Equal(t, res.EnvelopeID, envelope.ID)
	assert.Equal(t, "appstore", envelope.Source)
	assert.Equal(t, "renewal", envelope.Event.EventType)
	assert.Equal(t, "abc", envelope.Metadata.DeliveryHash)
	assert.Equal(t, "req-1", envelope.Metadata.RequestID)
}

func TestPublisher_IgnoredEvents(t *testing.T) {
	ignored := models.CanonicalEvent{
		Status:    models.StatusIgnored,
		EventType: models.EventTypeUnknown,
		RawType:   "CONSUMPTION_REQUEST",
		Platform:  constants.PlatformAppStore,
	}

	tests := []struct {
		name           string
		publishIgnored bool
		wantPublished  bool
	}{
		{name: "skipped by default", publishIgnored: false, wantPublished: false},
		{name: "published when enabled", publishIgnored: true, wantPublished: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := &fakeProducer{}
			p, err := New(producer, "events", config.PublishingConfig{PublishIgnored: tt.publishIgnored}, nil)
			require.NoError(t, err)

			res, err := p.Publish(context.Background(), ignored, Meta{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPublished, res.Published)
			assert.Len(t, producer.messages, map[bool]int{true: 1, false: 0}[tt.wantPublished])
		})
	}
}

func TestPublisher_Filter(t *testing.T) {
	producer := &fakeProducer{}
	p, err := New(producer, "events", config.PublishingConfig{
		Filter: `event.event_type != "renewal"`,
	}, nil)
	require.NoError(t, err)

	res, err := p.Publish(context.Background(), renewalEvent(), Meta{})
	require.NoError(t, err)
	assert.False(t, res.Published)
	assert.Equal(t, outcomeFiltered, res.Outcome)

	refund := renewalEvent()
	refund.EventType = "refund"
	res, err = p.Publish(context.Background(), refund, Meta{})
	require.NoError(t, err)
	assert.True(t, res.Published)
	assert.Len(t, producer.messages, 1)
}

func TestPublisher_FilterErrorPublishes(t *testing.T) {
	producer := &fakeProducer{}
	p, err := New(producer, "events", config.PublishingConfig{
		Filter: `event.payload.missing == "x"`,
	}, nil)
	require.NoError(t, err)

	res, err := p.Publish(context.Background(), renewalEvent(), Meta{})
	require.NoError(t, err)
	assert.True(t, res.Published)
}

func TestPublisher_InvalidFilter(t *testing.T) {
	_, err := New(&fakeProducer{}, "events", config.PublishingConfig{Filter: "event.event_type =="}, nil)
	assert.Error(t, err)
}

func TestPublisher_ProducerError(t *testing.T) {
	brokerDown := errors.New("kafka: leader not available")
	p, err := New(&fakeProducer{err: brokerDown}, "events", config.PublishingConfig{}, nil)
	require.NoError(t, err)

	res, err := p.Publish(context.Background(), renewalEvent(), Meta{})
	assert.ErrorIs(t, err, brokerDown)
	assert.False(t, res.Published)
	assert.Equal(t, outcomeFailed, res.Outcome)
}

func TestPublisher_NoProducer(t *testing.T) {
	p, err := New(nil, "", config.PublishingConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	res, err := p.Publish(context.Background(), renewalEvent(), Meta{})
	require.NoError(t, err)
	assert.False(t, res.Published)
	assert.Equal(t, outcomeSkipped, res.Outcome)
}
