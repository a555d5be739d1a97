// Package googleplay handles Google Play real-time developer
// notifications, bare or wrapped in a Pub/Sub push message.
package googleplay

import (
	"storehook/internal/constants"
	"storehook/internal/platform"
	"storehook/pkg/models"
)

const (
	fieldSubscription  = "subscriptionNotification"
	fieldOneTime       = "oneTimeProductNotification"
	fieldTest          = "testNotification"
	fieldType          = "notificationType"
	fieldPurchaseToken = "purchaseToken"
)

const (
	EventTestNotification    = "test_notification"
	EventUnknownSubscription = "unknown_subscription"
	EventUnknownOneTime      = "unknown_one_time"
)

var subscriptionEvents = map[int]string{
	1:  "subscription_recovered",
	2:  "subscription_renewed",
	3:  "subscription_canceled",
	4:  "subscription_purchased",
	5:  "subscription_on_hold",
	6:  "subscription_grace_period",
	7:  "subscription_restarted",
	8:  "subscription_price_change_confirmed",
	9:  "subscription_deferred",
	10: "subscription_paused",
	11: "subscription_pause_schedule_changed",
	12: "subscription_revoked",
	13: "subscription_expired",
}

var oneTimeEvents = map[int]string{
	1: "one_time_purchased",
	2: "one_time_canceled",
}

// HasKnownShape reports whether claims carry one of the three
// notification members.
func HasKnownShape(claims map[string]interface{}) bool {
	return platform.Has(claims, fieldTest) ||
		platform.Has(claims, fieldSubscription) ||
		platform.Has(claims, fieldOneTime)
}

// Classify maps a notification to a canonical event. Test pings win over
// the other shapes, then subscription, then one-time product.
func Classify(claims map[string]interface{}) models.CanonicalEvent {
	event := models.CanonicalEvent{
		Platform: constants.PlatformGooglePlay,
		Payload:  claims,
	}

	switch {
	case platform.Has(claims, fieldTest):
		event.Status = models.StatusSuccess
		event.EventType = EventTestNotification
	case platform.Has(claims, fieldSubscription):
		classifyNotification(&event, platform.Object(claims, fieldSubscription), subscriptionEvents, EventUnknownSubscription)
	case platform.Has(claims, fieldOneTime):
		classifyNotification(&event, platform.Object(claims, fieldOneTime), oneTimeEvents, EventUnknownOneTime)
	default:
		event.Status = models.StatusFailed
		event.EventType = models.EventTypeUnknown
	}

	return event
}

func classifyNotification(event *models.CanonicalEvent, notification map[string]interface{}, table map[int]string, unknown string) {
	code, ok := platform.Code(notification, fieldType)
	tag, known := table[code]
	if !ok || !known {
		event.Status = models.StatusIgnored
		event.EventType = unknown
		event.RawType = platform.RawValue(notification, fieldType)
		return
	}

	event.Status = models.StatusSuccess
	event.EventType = tag
	event.SubscriptionID = platform.String(notification, fieldPurchaseToken)
}
