package constants

import "time"

const ServiceName = "webhook-service"

const (
	PlatformAppStore   = "appstore"
	PlatformGooglePlay = "googleplay"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultKeyFetchTimeout = 5 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
)

const (
	CacheKeyPrefixDelivery = "webhook:delivery:"
)

const (
	DefaultOutputTopic = "subscription_events"
	DefaultDLQTopic    = "subscription_events_dlq"
	DefaultInputTopic  = "raw_webhook_deliveries"
	DefaultGroupID     = "webhook-service"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultTTLSeconds = 86400
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

// Behaviour of the dedupe step when redis is unreachable.
const (
	RedisErrorAllow = "allow"
	RedisErrorDeny  = "deny"
)

// Kafka header names carried on raw deliveries bridged by the consumer.
const (
	HeaderPlatform  = "platform"
	HeaderRequestID = "request_id"
)
