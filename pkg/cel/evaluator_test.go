package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storehook/pkg/models"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "status comparison", expr: `event.status == "success"`},
		{name: "membership", expr: `event.event_type in ["renewal", "refund"]`},
		{name: "non-bool expression", expr: `event.event_type`, wantError: true},
		{name: "undefined variable", expr: `payload.status == "active"`, wantError: true},
		{name: "syntax error", expr: `event.status ==`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	renewal := models.CanonicalEvent{
		Status:         models.StatusSuccess,
		EventType:      "subscription_renewed",
		SubscriptionID: "tok-1",
		Platform:       "googleplay",
		Payload: map[string]interface{}{
			"packageName": "com.example.app",
		},
	}
	ignored := models.CanonicalEvent{
		Status:    models.StatusIgnored,
		EventType: models.EventTypeUnknown,
		Platform:  "appstore",
		RawType:   "CONSUMPTION_REQUEST",
	}

	tests := []struct {
		name  string
		expr  string
		event models.CanonicalEvent
		want  bool
	}{
		{name: "drop ignored keeps success", expr: `event.status != "ignored"`, event: renewal, want: true},
		{name: "drop ignored drops ignored", expr: `event.status != "ignored"`, event: ignored, want: false},
		{name: "platform filter", expr: `event.platform == "appstore"`, event: renewal, want: false},
		{name: "payload field", expr: `has(event.payload.packageName) && event.payload.packageName.startsWith("com.example")`, event: renewal, want: true},
		{name: "raw type", expr: `event.raw_type == "CONSUMPTION_REQUEST"`, event: ignored, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := eval.CompileFilter(tt.expr)
			require.NoError(t, err)

			got, err := filter.Matches(context.Background(), tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateFilter_MissingPayloadKeyErrors(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	_, err = eval.EvaluateFilter(context.Background(), `event.payload.absent == "x"`, models.CanonicalEvent{Status: models.StatusSuccess})
	assert.Error(t, err)
}
