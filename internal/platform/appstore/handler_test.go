package appstore

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storehook/internal/envelope"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/models"
)

type keyResolver map[string]crypto.PublicKey

func (r keyResolver) Resolve(_ context.Context, kid string) (crypto.PublicKey, error) {
	key, ok := r[kid]
	if !ok {
		return nil, apperrors.ErrKeyNotFound
	}
	return key, nil
}

func signedBody(t *testing.T, key *ecdsa.PrivateKey, kid string, claims jwt.MapClaims) []byte {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return []byte(`{"signedPayload":"` + signed + `"}`)
}

func newSigningHandler(t *testing.T, disabled bool) (*Handler, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	verifier := envelope.NewVerifier(
		envelope.VerifierConfig{Platform: "appstore", Disabled: disabled},
		keyResolver{"apple-1": &key.PublicKey},
		nil,
	)
	return NewHandler(verifier, nil), key
}

func TestHandler_SignedEnvelope(t *testing.T) {
	h, key := newSigningHandler(t, false)
	raw := signedBody(t, key, "apple-1", jwt.MapClaims{
		"notificationType": "DID_FAIL_TO_RENEW",
		"notificationUUID": "uuid-1",
		"data":             map[string]interface{}{"originalTransactionId": "700"},
	})

	v, err := h.Validate(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, v.Signed)

	event := h.Process(context.Background(), v)
	assert.Equal(t, models.StatusSuccess, event.Status)
	assert.Equal(t, "renewal_failure", event.EventType)
	assert.Equal(t, "700", event.SubscriptionID)
	assert.Equal(t, "uuid-1", event.NotificationID)
}

func TestHandler_ForgedSignatureRejectedBeforeClassification(t *testing.T) {
	h, key := newSigningHandler(t, false)
	raw := signedBody(t, key, "apple-1", jwt.MapClaims{"notificationType": "REFUND"})

	body := string(raw)
	start := strings.Index(body, ".") + 1
	end := strings.LastIndex(body, ".")
	forged := body[:start] + "eyJub3RpZmljYXRpb25UeXBlIjoiSU5JVElBTF9CVVkifQ" + body[end:]

	_, err := h.Validate(context.Background(), []byte(forged))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)
}

func TestHandler_UnknownKeyID(t *testing.T) {
	h, key := newSigningHandler(t, false)
	raw := signedBody(t, key, "apple-2", jwt.MapClaims{"notificationType": "REFUND"})

	_, err := h.Validate(context.Background(), raw)
	assert.ErrorIs(t, err, apperrors.ErrVerificationFailed)
	assert.Equal(t, "KEY_NOT_FOUND", apperrors.ReasonCode(err))
}

func TestHandler_PlainBody(t *testing.T) {
	raw := []byte(`{"notificationType":"INITIAL_BUY","originalTransactionId":"12345"}`)

	t.Run("verification disabled accepts test shape", func(t *testing.T) {
		h, _ := newSigningHandler(t, true)

		v, err := h.Validate(context.Background(), raw)
		require.NoError(t, err)
		assert.False(t, v.Signed)

		event := h.Process(context.Background(), v)
		assert.Equal(t, "initial_purchase", event.EventType)
		assert.Equal(t, "12345", event.SubscriptionID)
	})

	t.Run("verification enabled requires a signature", func(t *testing.T) {
		h, _ := newSigningHandler(t, false)

		_, err := h.Validate(context.Background(), raw)
		assert.ErrorIs(t, err, apperrors.ErrSignatureRequired)
	})

	t.Run("nil verifier accepts test shape", func(t *testing.T) {
		_, err := NewHandler(nil, nil).Validate(context.Background(), raw)
		assert.NoError(t, err)
	})
}

func TestHandler_Rejections(t *testing.T) {
	h := NewHandler(nil, nil)

	tests := []struct {
		name string
		raw  string
		want *apperrors.Error
	}{
		{name: "not json", raw: `not json`, want: apperrors.ErrMalformedJSON},
		{name: "google shape", raw: `{"subscriptionNotification":{"notificationType":2}}`, want: apperrors.ErrUnsupportedShape},
		{name: "null type", raw: `{"notificationType":null}`, want: apperrors.ErrUnsupportedShape},
		{name: "broken envelope", raw: `{"signedPayload":"a.b"}`, want: apperrors.ErrMalformedEnvelope},
		{name: "signed without type", raw: `{"signedPayload":"e30.e30.c2ln"}`, want: apperrors.ErrUnsupportedShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Validate(context.Background(), []byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHandler_EmptyTypeIsIgnored(t *testing.T) {
	h := NewHandler(nil, nil)

	v, err := h.Validate(context.Background(), []byte(`{"notificationType":"","subscriptionId":"s1"}`))
	require.NoError(t, err)

	event := h.Process(context.Background(), v)
	assert.Equal(t, models.StatusIgnored, event.Status)
	assert.Equal(t, models.EventTypeUnknown, event.EventType)
	assert.Equal(t, "s1", event.SubscriptionID)
}
