package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewBackOff builds the exponential schedule for policy. A zero
// MaxElapsedTime leaves the schedule unbounded in time.
func NewBackOff(policy Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.Multiplier = policy.Multiplier
	exp.MaxElapsedTime = policy.MaxElapsedTime
	if exp.Multiplier <= 1 {
		exp.RandomizationFactor = 0
	}
	exp.Reset()
	return exp
}

func CalculateBackoffDuration(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt))
	if duration > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(duration)
}
