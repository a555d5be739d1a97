package health

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerRegistry_Aggregates(t *testing.T) {
	ok := CheckFunc{CheckName: "ok", Fn: func(context.Context) error { return nil }}
	cold := CheckFunc{CheckName: "keyset", Fn: func(context.Context) error { return Degraded("no keys fetched yet") }}
	down := CheckFunc{CheckName: "down", Fn: func(context.Context) error { return errors.New("refused") }}

	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{name: "empty", want: StatusHealthy},
		{name: "healthy", checkers: []Checker{ok}, want: StatusHealthy},
		{name: "degraded", checkers: []Checker{ok, cold}, want: StatusDegraded},
		{name: "unhealthy wins", checkers: []Checker{cold, down}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			for _, c := range tt.checkers {
				r.Register(c)
			}
			got := r.Check(context.Background())
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.Checks, len(tt.checkers))
		})
	}
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewRedisChecker(client)
	require.NoError(t, checker.Check(context.Background()))

	mr.Close()
	assert.Error(t, checker.Check(context.Background()))
}
