package appstore

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"storehook/pkg/models"
)

func TestClassify_EventTypes(t *testing.T) {
	tests := []struct {
		notificationType string
		want             string
	}{
		{"INITIAL_BUY", "initial_purchase"},
		{"RENEWAL", "renewal"},
		{"CANCELLATION", "cancellation"},
		{"DID_CHANGE_RENEWAL_STATUS", "renewal_status_change"},
		{"DID_FAIL_TO_RENEW", "renewal_failure"},
		{"PRICE_INCREASE", "price_increase"},
		{"REFUND", "refund"},
	}

	for _, tt := range tests {
		t.Run(tt.notificationType, func(t *testing.T) {
			event := Classify(map[string]interface{}{
				"notificationType":      tt.notificationType,
				"originalTransactionId": "12345",
			})

			assert.Equal(t, models.StatusSuccess, event.Status)
			assert.Equal(t, tt.want, event.EventType)
			assert.Equal(t, "12345", event.SubscriptionID)
			assert.Equal(t, "appstore", event.Platform)
			assert.Empty(t, event.RawType)
		})
	}
}

func TestClassify_UnknownTypeIsIgnored(t *testing.T) {
	claims := map[string]interface{}{
		"notificationType": "CONSUMPTION_REQUEST",
		"subscriptionId":   "sub-9",
	}

	event := Classify(claims)

	assert.Equal(t, models.StatusIgnored, event.Status)
	assert.Equal(t, models.EventTypeUnknown, event.EventType)
	assert.Equal(t, "CONSUMPTION_REQUEST", event.RawType)
	assert.Equal(t, "sub-9", event.SubscriptionID)
	assert.Equal(t, claims, event.Payload)
}

func TestSubscriptionID_FieldPath(t *testing.T) {
	nested := "e30." + base64.RawURLEncoding.EncodeToString([]byte(`{"originalTransactionId":"from-jws"}`)) + ".c2ln"

	tests := []struct {
		name   string
		claims map[string]interface{}
		want   string
	}{
		{
			name:   "top level wins",
			claims: map[string]interface{}{"originalTransactionId": "top", "data": map[string]interface{}{"originalTransactionId": "data"}},
			want:   "top",
		},
		{
			name:   "data member",
			claims: map[string]interface{}{"data": map[string]interface{}{"originalTransactionId": "data"}},
			want:   "data",
		},
		{
			name:   "nested signed transaction",
			claims: map[string]interface{}{"data": map[string]interface{}{"signedTransactionInfo": nested}},
			want:   "from-jws",
		},
		{
			name:   "undecodable signed transaction",
			claims: map[string]interface{}{"data": map[string]interface{}{"signedTransactionInfo": "garbage"}},
			want:   "",
		},
		{
			name:   "numeric id",
			claims: map[string]interface{}{"originalTransactionId": float64(2000000123456789)},
			want:   "2000000123456789",
		},
		{
			name:   "none",
			claims: map[string]interface{}{"notificationType": "RENEWAL"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubscriptionID(tt.claims))
		})
	}
}

func TestClassify_SubscriptionIDByBranch(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]interface{}
		want   string
	}{
		{
			name:   "unknown type reads subscriptionId",
			claims: map[string]interface{}{"notificationType": "WHATEVER", "subscriptionId": "s1", "originalTransactionId": "o1"},
			want:   "s1",
		},
		{
			name:   "unknown type without subscriptionId",
			claims: map[string]interface{}{"notificationType": "WHATEVER", "originalTransactionId": "o1"},
			want:   "",
		},
		{
			name:   "known type ignores subscriptionId",
			claims: map[string]interface{}{"notificationType": "RENEWAL", "subscriptionId": "s1"},
			want:   "",
		},
		{
			name:   "known type reads originalTransactionId",
			claims: map[string]interface{}{"notificationType": "RENEWAL", "subscriptionId": "s1", "originalTransactionId": "o1"},
			want:   "o1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.claims).SubscriptionID)
		})
	}
}

func TestClassify_NotificationUUID(t *testing.T) {
	event := Classify(map[string]interface{}{
		"notificationType": "REFUND",
		"notificationUUID": "3f1c2a7e-0000-4000-8000-000000000001",
	})
	assert.Equal(t, "3f1c2a7e-0000-4000-8000-000000000001", event.NotificationID)
}
