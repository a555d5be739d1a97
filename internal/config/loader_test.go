package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
  read_timeout_seconds: 5
  write_timeout_seconds: 5
  max_body_bytes: 65536
logging:
  level: debug
platforms:
  appstore:
    enabled: true
    verify_signature: true
    jwks_url: https://keys.example.test/jwks
    algorithms: [es256, RS256]
    fetch_timeout: 2s
  googleplay:
    enabled: true
    unwrap_pubsub: false
broker:
  kafka:
    brokers: ["kafka:9092"]
    output_topic: subscription_events
deduplication:
  enabled: true
  ttl_seconds: 600
database:
  redis:
    host: redis
    port: 6379
publishing:
  filter: 'event.status != "ignored"'
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(65536), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	as := cfg.Platforms.AppStore
	assert.True(t, as.VerifySignature)
	assert.Equal(t, "https://keys.example.test/jwks", as.JWKSURL)
	assert.Equal(t, []string{"ES256", "RS256"}, as.Algorithms)
	assert.Equal(t, 2*time.Second, as.FetchTimeout)
	assert.False(t, cfg.Platforms.GooglePlay.UnwrapPubSub)

	assert.Equal(t, []string{"kafka:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "subscription_events_dlq", cfg.Broker.Kafka.DLQTopic)
	assert.Equal(t, 600, cfg.Deduplication.TTLSeconds)
	assert.Equal(t, "sha256", cfg.Deduplication.HashAlgorithm)
	assert.Equal(t, `event.status != "ignored"`, cfg.Publishing.Filter)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PLATFORMS_APPSTORE_JWKS_URL", "https://other.example.test/keys")
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "https://other.example.test/keys", cfg.Platforms.AppStore.JWKSURL)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadConfig_DefaultsOnly(t *testing.T) {
	t.Setenv("PLATFORMS_APPSTORE_VERIFY_SIGNATURE", "false")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Platforms.AppStore.Enabled)
	assert.False(t, cfg.Platforms.AppStore.VerifySignature)
	assert.True(t, cfg.Platforms.GooglePlay.UnwrapPubSub)
	assert.Empty(t, cfg.Broker.Kafka.Brokers)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateStatic(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080, ReadTimeoutSeconds: 5, WriteTimeoutSeconds: 5, MaxBodyBytes: 1024},
			Platforms: PlatformsConfig{
				AppStore: AppStoreConfig{
					Enabled:         true,
					VerifySignature: true,
					JWKSURL:         "https://keys.example.test/jwks",
					Algorithms:      []string{"ES256"},
					FetchTimeout:    time.Second,
				},
				GooglePlay: GooglePlayConfig{Enabled: true},
			},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantField: "server.port"},
		{name: "no platforms", mutate: func(c *Config) {
			c.Platforms.AppStore.Enabled = false
			c.Platforms.GooglePlay.Enabled = false
		}, wantField: "platforms"},
		{name: "missing jwks url", mutate: func(c *Config) { c.Platforms.AppStore.JWKSURL = "" }, wantField: "platforms.appstore.jwks_url"},
		{name: "jwks url not needed when unverified", mutate: func(c *Config) {
			c.Platforms.AppStore.JWKSURL = ""
			c.Platforms.AppStore.VerifySignature = false
		}},
		{name: "hmac rejected", mutate: func(c *Config) { c.Platforms.AppStore.Algorithms = []string{"HS256"} }, wantField: "platforms.appstore.algorithms"},
		{name: "empty broker", mutate: func(c *Config) { c.Broker.Kafka.Brokers = []string{""} }, wantField: "broker.kafka.brokers[0]"},
		{name: "dedupe needs redis", mutate: func(c *Config) { c.Deduplication.Enabled = true }, wantField: "database.redis.host"},
		{name: "bad on_redis_error", mutate: func(c *Config) { c.Deduplication.OnRedisError = "explode" }, wantField: "deduplication.on_redis_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)

			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}
