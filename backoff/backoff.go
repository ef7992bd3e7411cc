// Package backoff provides pluggable retry delay strategies. By default
// the engine honors each job's own RetryDelay; a Strategy installed via
// the engine's WithBackoff option overrides it, typically to spread
// retries out exponentially. All strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(attempt int) time.Duration

// Delay implements Strategy.
func (f StrategyFunc) Delay(attempt int) time.Duration { return f(attempt) }

// Constant always returns the same delay regardless of attempt number.
func Constant(interval time.Duration) Strategy {
	return StrategyFunc(func(int) time.Duration {
		return interval
	})
}

// Linear increases the delay linearly with the attempt number:
// min(initial * attempt, maxDelay).
func Linear(initial, maxDelay time.Duration) Strategy {
	return StrategyFunc(func(attempt int) time.Duration {
		return capDelay(initial*time.Duration(attempt), maxDelay)
	})
}

// Exponential doubles the delay each attempt:
// min(initial * 2^(attempt-1), maxDelay).
func Exponential(initial, maxDelay time.Duration) Strategy {
	return StrategyFunc(func(attempt int) time.Duration {
		d := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
		return capDelay(d, maxDelay)
	})
}

// ExponentialWithJitter applies full jitter to an exponential base:
// a random value in [0, min(initial * 2^(attempt-1), maxDelay)]. Jitter
// prevents thundering herd when many retries land simultaneously.
func ExponentialWithJitter(initial, maxDelay time.Duration) Strategy {
	return StrategyFunc(func(attempt int) time.Duration {
		base := capDelay(time.Duration(float64(initial)*math.Pow(2, float64(attempt-1))), maxDelay)
		return time.Duration(rand.Float64() * float64(base)) //nolint:gosec // jitter intentionally uses non-crypto rand
	})
}

// DefaultStrategy returns exponential backoff with full jitter, 1s initial
// and 1m cap.
func DefaultStrategy() Strategy {
	return ExponentialWithJitter(1*time.Second, 1*time.Minute)
}

func capDelay(d, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
