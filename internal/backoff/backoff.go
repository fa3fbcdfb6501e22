package backoff

import (
	"time"

	"github.com/avast/retry-go/v4"
)

const maxShift = 30

// Exponential returns base * 2^attempt.
func Exponential(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	return base * (1 << attempt)
}

// Capped is Exponential limited to max. A max of zero means no limit.
func Capped(attempt int, base, max time.Duration) time.Duration {
	if max <= 0 {
		return Exponential(attempt, base)
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift || base > max>>attempt {
		return max
	}
	return base * (1 << attempt)
}

// DelayType plugs Capped into retry-go.
func DelayType(base, max time.Duration) retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		return Capped(int(n), base, max)
	}
}
