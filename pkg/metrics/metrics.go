package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of webhook deliveries handled, by platform and outcome (count)",
		},
		[]string{"platform", "outcome"},
	)

	WebhookRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_rejections_total",
			Help: "Total number of rejected webhook deliveries by reason code (count)",
		},
		[]string{"reason"},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of canonical events produced (count)",
		},
		[]string{"platform", "event_type", "status"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_dispatch_duration_ms",
			Help:    "Duration of decode, verify and classify for one delivery in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"platform", "outcome"},
	)

	KeySetFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyset_fetches_total",
			Help: "Total number of signing key set fetches (count)",
		},
		[]string{"platform", "result"},
	)

	KeySetFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keyset_fetch_duration_ms",
			Help:    "Duration of signing key set fetches in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"platform"},
	)

	KeySetSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keyset_size",
			Help: "Number of usable keys in the cached key set (count)",
		},
		[]string{"platform"},
	)

	KeyLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyset_lookups_total",
			Help: "Total number of key id lookups by result (hit, refreshed, not_found, error) (count)",
		},
		[]string{"platform", "result"},
	)

	DedupLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_lookups_total",
			Help: "Total number of delivery de-duplication checks (count)",
		},
		[]string{"result"},
	)

	DedupProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedup_processing_duration_ms",
			Help:    "Duration of delivery de-duplication checks in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	PublishedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "published_events_total",
			Help: "Total number of canonical events handed to the publisher (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)
)

var (
	webhookOnce sync.Once
	brokerOnce  sync.Once
	breakerOnce sync.Once
	ingressOnce sync.Once
)

// RegisterWebhookMetrics registers the dispatch, key set and dedupe
// collectors with the default registry. Safe to call more than once.
func RegisterWebhookMetrics() {
	webhookOnce.Do(func() {
		prometheus.MustRegister(WebhookDeliveriesTotal)
		prometheus.MustRegister(WebhookRejectionsTotal)
		prometheus.MustRegister(WebhookEventsTotal)
		prometheus.MustRegister(DispatchDuration)
		prometheus.MustRegister(KeySetFetchesTotal)
		prometheus.MustRegister(KeySetFetchDuration)
		prometheus.MustRegister(KeySetSize)
		prometheus.MustRegister(KeyLookupsTotal)
		prometheus.MustRegister(DedupLookupsTotal)
		prometheus.MustRegister(DedupProcessingDuration)
		prometheus.MustRegister(PublishedEventsTotal)
		prometheus.MustRegister(FallbackUsageTotal)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(DLQMessagesTotal)
		prometheus.MustRegister(KafkaMessagesReadTotal)
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
		prometheus.MustRegister(KafkaMessageSizeBytes)
		prometheus.MustRegister(KafkaWriteDuration)
	})
}

func RegisterCircuitBreakerMetrics() {
	breakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterIngressMetrics() {
	ingressOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
}

func IncDelivery(platform, outcome string) {
	WebhookDeliveriesTotal.WithLabelValues(platform, outcome).Inc()
}

func IncRejection(reason string) {
	WebhookRejectionsTotal.WithLabelValues(reason).Inc()
}

func IncEvent(platform, eventType, status string) {
	WebhookEventsTotal.WithLabelValues(platform, eventType, status).Inc()
}

func ObserveDispatchDuration(platform, outcome string, duration time.Duration) {
	DispatchDuration.WithLabelValues(platform, outcome).Observe(float64(duration.Milliseconds()))
}

func IncKeySetFetch(platform, result string) {
	KeySetFetchesTotal.WithLabelValues(platform, result).Inc()
}

func ObserveKeySetFetchDuration(platform string, duration time.Duration) {
	KeySetFetchDuration.WithLabelValues(platform).Observe(float64(duration.Milliseconds()))
}

func SetKeySetSize(platform string, size int) {
	KeySetSize.WithLabelValues(platform).Set(float64(size))
}

func IncKeyLookup(platform, result string) {
	KeyLookupsTotal.WithLabelValues(platform, result).Inc()
}

func IncDedupLookup(result string) {
	DedupLookupsTotal.WithLabelValues(result).Inc()
}

func ObserveDedupDuration(duration time.Duration, status string) {
	DedupProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncPublished(status string) {
	PublishedEventsTotal.WithLabelValues(status).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
