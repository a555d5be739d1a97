// Package appstore handles App Store Server Notifications: signed V2
// envelopes and the plain JSON shape used in test mode.
package appstore

import (
	"storehook/internal/constants"
	"storehook/internal/envelope"
	"storehook/internal/platform"
	"storehook/pkg/models"
)

const (
	fieldNotificationType  = "notificationType"
	fieldNotificationUUID  = "notificationUUID"
	fieldOriginalTxID      = "originalTransactionId"
	fieldSubscriptionID    = "subscriptionId"
	fieldData              = "data"
	fieldSignedTransaction = "signedTransactionInfo"
)

// eventTypes maps notificationType to the canonical tag.
var eventTypes = map[string]string{
	"INITIAL_BUY":               "initial_purchase",
	"RENEWAL":                   "renewal",
	"CANCELLATION":              "cancellation",
	"DID_CHANGE_RENEWAL_STATUS": "renewal_status_change",
	"DID_FAIL_TO_RENEW":         "renewal_failure",
	"PRICE_INCREASE":            "price_increase",
	"REFUND":                    "refund",
}

// Classify maps verified claims to a canonical event. It never fails: an
// unmapped notificationType is reported as ignored with the raw type kept.
func Classify(claims map[string]interface{}) models.CanonicalEvent {
	rawType := platform.String(claims, fieldNotificationType)

	event := models.CanonicalEvent{
		Platform:       constants.PlatformAppStore,
		Payload:        claims,
		NotificationID: platform.String(claims, fieldNotificationUUID),
	}

	tag, ok := eventTypes[rawType]
	if !ok {
		event.Status = models.StatusIgnored
		event.EventType = models.EventTypeUnknown
		event.RawType = rawType
		event.SubscriptionID = platform.String(claims, fieldSubscriptionID)
		return event
	}

	event.Status = models.StatusSuccess
	event.EventType = tag
	event.SubscriptionID = SubscriptionID(claims)
	return event
}

// SubscriptionID reads the transaction id of a mapped notification from
// originalTransactionId, data.originalTransactionId or
// data.signedTransactionInfo.originalTransactionId, in that order.
// Unmapped notifications carry subscriptionId instead.
func SubscriptionID(claims map[string]interface{}) string {
	if id := platform.String(claims, fieldOriginalTxID); id != "" {
		return id
	}

	data := platform.Object(claims, fieldData)
	if id := platform.String(data, fieldOriginalTxID); id != "" {
		return id
	}
	return platform.String(transactionInfo(data), fieldOriginalTxID)
}

// transactionInfo decodes data.signedTransactionInfo. The nested JWS is
// only read after the outer envelope verified, so its signature is not
// checked again.
func transactionInfo(data map[string]interface{}) map[string]interface{} {
	token := platform.String(data, fieldSignedTransaction)
	if token == "" {
		return nil
	}
	segments, err := envelope.DecodeSegments(token)
	if err != nil {
		return nil
	}
	return segments.Claims
}
