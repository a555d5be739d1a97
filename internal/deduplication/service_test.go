package deduplication

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storehook/internal/config"
	"storehook/internal/constants"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/models"
)

func newRedisService(t *testing.T, cfg config.DeduplicationConfig) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewService(NewRepository(client), cfg, nil), mr
}

func renewal(notificationID string) models.CanonicalEvent {
	return models.CanonicalEvent{
		Platform:       constants.PlatformAppStore,
		EventType:      "renewal",
		NotificationID: notificationID,
	}
}

func TestService_ClaimMarksDuplicates(t *testing.T) {
	svc, mr := newRedisService(t, config.DeduplicationConfig{HashAlgorithm: "sha256", TTLSeconds: 60})
	ctx := context.Background()
	raw := []byte(`{"signedPayload":"a.b.c"}`)

	first, err := svc.Claim(ctx, renewal("uuid-1"), raw)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.True(t, mr.Exists(first.Key))
	assert.Equal(t, 60*time.Second, mr.TTL(first.Key))

	second, err := svc.Claim(ctx, renewal("uuid-1"), []byte(`{"signedPayload":"different.bytes.same-id"}`))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Key, second.Key)

	other, err := svc.Claim(ctx, renewal("uuid-2"), raw)
	require.NoError(t, err)
	assert.False(t, other.Duplicate)
}

func TestService_ClaimExpires(t *testing.T) {
	svc, mr := newRedisService(t, config.DeduplicationConfig{TTLSeconds: 5})
	ctx := context.Background()
	raw := []byte(`{"testNotification":{}}`)
	event := models.CanonicalEvent{Platform: constants.PlatformGooglePlay}

	_, err := svc.Claim(ctx, event, raw)
	require.NoError(t, err)

	mr.FastForward(6 * time.Second)

	again, err := svc.Claim(ctx, event, raw)
	require.NoError(t, err)
	assert.False(t, again.Duplicate)
}

func TestService_ReleaseAllowsRetry(t *testing.T) {
	svc, mr := newRedisService(t, config.DeduplicationConfig{TTLSeconds: 60})
	ctx := context.Background()

	claim, err := svc.Claim(ctx, renewal("uuid-9"), nil)
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, claim))
	assert.False(t, mr.Exists(claim.Key))

	again, err := svc.Claim(ctx, renewal("uuid-9"), nil)
	require.NoError(t, err)
	assert.False(t, again.Duplicate)

	// A duplicate never owned the key and must not delete it.
	dup, err := svc.Claim(ctx, renewal("uuid-9"), nil)
	require.NoError(t, err)
	require.True(t, dup.Duplicate)
	require.NoError(t, svc.Release(ctx, dup))
	assert.True(t, mr.Exists(again.Key))
}

func TestService_ClaimCanceledContext(t *testing.T) {
	svc, mr := newRedisService(t, config.DeduplicationConfig{TTLSeconds: 60})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Claim(ctx, renewal("uuid-10"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, http.StatusRequestTimeout, apperrors.ToHTTPStatus(err))
	assert.Empty(t, mr.Keys())
}

func TestService_DeliveryHash(t *testing.T) {
	sha := NewService(nil, config.DeduplicationConfig{HashAlgorithm: "sha256"}, nil)
	md5 := NewService(nil, config.DeduplicationConfig{HashAlgorithm: "md5"}, nil)

	body := []byte(`{"testNotification":{}}`)
	play := models.CanonicalEvent{Platform: constants.PlatformGooglePlay}
	apple := models.CanonicalEvent{Platform: constants.PlatformAppStore}

	assert.Len(t, sha.DeliveryHash(play, body), 64)
	assert.Len(t, md5.DeliveryHash(play, body), 32)
	assert.Equal(t, sha.DeliveryHash(play, body), sha.DeliveryHash(play, body))
	assert.NotEqual(t, sha.DeliveryHash(play, body), sha.DeliveryHash(apple, body))
	assert.NotEqual(t, sha.DeliveryHash(renewal("x"), body), sha.DeliveryHash(renewal("y"), body))
}

type failingRepo struct {
	err error
}

func (r failingRepo) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, r.err
}

func (r failingRepo) Delete(context.Context, string) error {
	return r.err
}

func TestService_RedisErrorFallback(t *testing.T) {
	redisDown := errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

	tests := []struct {
		name         string
		onRedisError string
		wantErr      bool
	}{
		{name: "allow", onRedisError: constants.RedisErrorAllow},
		{name: "unset behaves like allow", onRedisError: ""},
		{name: "deny", onRedisError: constants.RedisErrorDeny, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(failingRepo{err: redisDown}, config.DeduplicationConfig{OnRedisError: tt.onRedisError}, nil)

			claim, err := svc.Claim(context.Background(), renewal("uuid-1"), nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
				assert.ErrorIs(t, err, redisDown)
				return
			}
			require.NoError(t, err)
			assert.False(t, claim.Duplicate)
			// Nothing was written, so release is a no-op.
			assert.NoError(t, svc.Release(context.Background(), claim))
		})
	}
}

func TestCircuitBreakerRepository_OpensOnRedisFailures(t *testing.T) {
	repo := NewCircuitBreakerRepository(failingRepo{err: errors.New("i/o timeout")}, config.CircuitBreakerConfig{
		Enabled:      true,
		Timeout:      time.Hour,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	for i := 0; i < 2; i++ {
		_, err := repo.SetNX(context.Background(), "k", 1, time.Minute)
		require.Error(t, err)
	}

	assert.True(t, repo.IsOpen())
	assert.Equal(t, "open", repo.State())

	_, err := repo.SetNX(context.Background(), "k", 1, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestCircuitBreakerRepository_Disabled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewCircuitBreakerRepository(NewRepository(client), config.CircuitBreakerConfig{Enabled: false})
	assert.Equal(t, "disabled", repo.State())

	ok, err := repo.SetNX(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, repo.Delete(context.Background(), "k"))
	assert.False(t, mr.Exists("k"))
}
