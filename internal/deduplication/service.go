package deduplication

import (
	"context"
	"time"

	"storehook/internal/config"
	"storehook/internal/constants"
	"storehook/internal/logger"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/metrics"
	"storehook/pkg/models"
	"storehook/pkg/tracing"
)

type redisErrorHandlingStatus int

const (
	redisErrorHandlingDeny redisErrorHandlingStatus = iota
	redisErrorHandlingAllow
)

const (
	statusUnique    = "unique"
	statusDuplicate = "duplicate"
	statusError     = "error"
)

// Claim is the outcome of marking a delivery as seen.
type Claim struct {
	Key       string
	Hash      string
	Duplicate bool
	// held is false when redis failed and the allow fallback let the
	// delivery through; there is nothing to release then.
	held bool
}

// Service remembers accepted deliveries for ttl_seconds so platform
// retries of the same notification are acknowledged without a second
// publish.
type Service struct {
	repo   Repository
	hasher *Hasher
	cfg    config.DeduplicationConfig
	ttl    time.Duration
	logger logger.Logger
}

func NewService(repo Repository, cfg config.DeduplicationConfig, log logger.Logger) *Service {
	if log == nil {
		log = logger.NopLogger()
	}
	ttlSeconds := cfg.TTLSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultTTLSeconds
	}

	return &Service{
		repo:   repo,
		hasher: NewHasher(cfg.HashAlgorithm),
		cfg:    cfg,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		logger: log,
	}
}

// DeliveryHash keys a delivery by its platform notification id when it has
// one, otherwise by the raw body.
func (s *Service) DeliveryHash(event models.CanonicalEvent, raw []byte) string {
	if event.NotificationID != "" {
		return s.hasher.ComputeHash([]byte(event.Platform), []byte("id"), []byte(event.NotificationID))
	}
	return s.hasher.ComputeHash([]byte(event.Platform), []byte("body"), raw)
}

// Claim marks the delivery as seen. Duplicate is set when an earlier
// delivery already holds the key.
func (s *Service) Claim(ctx context.Context, event models.CanonicalEvent, raw []byte) (Claim, error) {
	ctx, span := tracing.StartSpan(ctx, "deduplication.Claim")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return Claim{}, apperrors.ErrTimeout.WithCause(err)
	}

	hash := s.DeliveryHash(event, raw)
	claim := Claim{Key: constants.CacheKeyPrefixDelivery + hash, Hash: hash}

	start := time.Now()
	first, err := s.repo.SetNX(ctx, claim.Key, time.Now().Unix(), s.ttl)
	duration := time.Since(start)

	if err != nil {
		return s.handleRedisError(ctx, claim, err, duration)
	}

	claim.held = first
	claim.Duplicate = !first
	s.recordMetrics(duration, first)
	return claim, nil
}

// Release forgets a claim so a platform retry is processed again. It is
// called when publishing the claimed delivery failed.
func (s *Service) Release(ctx context.Context, claim Claim) error {
	if !claim.held {
		return nil
	}
	if err := s.repo.Delete(ctx, claim.Key); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to release delivery claim",
			"key", claim.Key,
			"error", err,
		)
		return err
	}
	return nil
}

func (s *Service) handleRedisError(ctx context.Context, claim Claim, err error, duration time.Duration) (Claim, error) {
	s.recordMetricsWithStatus(duration, statusError)

	if s.getRedisErrorHandlingStatus(ctx, err) == redisErrorHandlingAllow {
		return claim, nil
	}
	return Claim{}, apperrors.ErrServiceUnavailable.WithCause(err).WithDetail("message", "delivery dedupe store unavailable")
}

func (s *Service) getRedisErrorHandlingStatus(ctx context.Context, err error) redisErrorHandlingStatus {
	if s.cfg.OnRedisError == constants.RedisErrorDeny {
		metrics.FallbackUsageTotal.WithLabelValues("deduplication", "deny_on_error", "redis_error").Inc()
		s.logger.ErrorwCtx(ctx, "Redis error during dedupe check, rejecting delivery (fallback: deny)",
			"error", err,
		)
		return redisErrorHandlingDeny
	}

	metrics.FallbackUsageTotal.WithLabelValues("deduplication", "allow_on_error", "redis_error").Inc()
	s.logger.WarnwCtx(ctx, "Redis error during dedupe check, allowing delivery (fallback: allow)",
		"error", err,
	)
	return redisErrorHandlingAllow
}

func (s *Service) recordMetrics(duration time.Duration, isUnique bool) {
	status := statusDuplicate
	if isUnique {
		status = statusUnique
	}
	s.recordMetricsWithStatus(duration, status)
}

func (s *Service) recordMetricsWithStatus(duration time.Duration, status string) {
	metrics.IncDedupLookup(status)
	metrics.ObserveDedupDuration(duration, status)
}
