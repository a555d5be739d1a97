package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"storehook/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks values that can be judged without network access.
// Every failing section contributes one *ValidationError to the joined result.
func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validatePlatforms(cfg.Platforms); err != nil {
		errs = append(errs, err)
	}

	if err := validateKafka(cfg.Broker.Kafka); err != nil {
		errs = append(errs, err)
	}

	if err := validateRedis(cfg.Database.Redis, cfg.Deduplication.Enabled); err != nil {
		errs = append(errs, err)
	}

	if err := validateDeduplication(cfg.Deduplication); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	if cfg.MaxBodyBytes <= 0 {
		return &ValidationError{
			Field:   "server.max_body_bytes",
			Message: "max body size must be positive",
		}
	}

	return nil
}

var allowedAlgorithms = map[string]bool{
	"ES256": true, "ES384": true, "ES512": true,
	"RS256": true, "RS384": true, "RS512": true,
	"PS256": true, "PS384": true, "PS512": true,
}

func validatePlatforms(cfg PlatformsConfig) error {
	if !cfg.AppStore.Enabled && !cfg.GooglePlay.Enabled {
		return &ValidationError{
			Field:   "platforms",
			Message: "at least one platform must be enabled",
		}
	}

	as := cfg.AppStore
	if !as.Enabled {
		return nil
	}

	if as.VerifySignature {
		if as.JWKSURL == "" {
			return &ValidationError{
				Field:   "platforms.appstore.jwks_url",
				Message: "key set URL is required when signature verification is enabled",
			}
		}
		u, err := url.Parse(as.JWKSURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return &ValidationError{
				Field:   "platforms.appstore.jwks_url",
				Message: fmt.Sprintf("invalid key set URL: %q", as.JWKSURL),
			}
		}
	}

	if len(as.Algorithms) == 0 {
		return &ValidationError{
			Field:   "platforms.appstore.algorithms",
			Message: "at least one signing algorithm is required",
		}
	}
	for _, alg := range as.Algorithms {
		if !allowedAlgorithms[alg] {
			return &ValidationError{
				Field:   "platforms.appstore.algorithms",
				Message: fmt.Sprintf("unsupported algorithm %q (asymmetric RS/PS/ES only)", alg),
			}
		}
	}

	if as.FetchTimeout <= 0 {
		return &ValidationError{
			Field:   "platforms.appstore.fetch_timeout",
			Message: "fetch timeout must be positive",
		}
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if len(cfg.Brokers) == 0 {
		return nil
	}

	if cfg.OutputTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.output_topic",
			Message: "output topic is required when brokers are configured",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig, required bool) error {
	if !required && cfg.Host == "" && cfg.Port == 0 {
		return nil
	}

	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateDeduplication(cfg DeduplicationConfig) error {
	validAlgorithms := map[string]bool{
		"md5": true, "sha256": true,
	}
	if cfg.HashAlgorithm != "" && !validAlgorithms[strings.ToLower(cfg.HashAlgorithm)] {
		return &ValidationError{
			Field:   "deduplication.hash_algorithm",
			Message: fmt.Sprintf("invalid hash algorithm: %s (valid: md5, sha256)", cfg.HashAlgorithm),
		}
	}

	if cfg.TTLSeconds < 0 {
		return &ValidationError{
			Field:   "deduplication.ttl_seconds",
			Message: "TTL must be non-negative",
		}
	}

	switch strings.ToLower(cfg.OnRedisError) {
	case "", constants.RedisErrorAllow, constants.RedisErrorDeny:
	default:
		return &ValidationError{
			Field:   "deduplication.on_redis_error",
			Message: fmt.Sprintf("invalid on_redis_error value: %s (valid: allow, deny)", cfg.OnRedisError),
		}
	}

	return nil
}
