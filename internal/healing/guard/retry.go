package guard

import (
	"math/rand"
	"time"
)

// RetryConfig controls the bounded retry loop wrapped around a single
// logical analyzer invocation.
type RetryConfig struct {
	// MaxAttempts bounds the total number of dispatches, first try included.
	MaxAttempts int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// BackoffMultiple scales the delay between consecutive retries.
	BackoffMultiple float64
	// Jitter adds up to this fraction of the delay so concurrent callers
	// do not retry in lockstep.
	Jitter float64
}

// DefaultRetryConfig matches the analyzer call profile: three attempts,
// one second base delay doubling up to thirty seconds.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    time.Second,
	MaxDelay:        30 * time.Second,
	BackoffMultiple: 2.0,
	Jitter:          0.1,
}

// backoffDelay computes the sleep before the retry following attempt
// (zero-based index of the attempt that just failed).
func (c RetryConfig) backoffDelay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.BackoffMultiple)
		if delay >= c.MaxDelay {
			delay = c.MaxDelay
			break
		}
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.Jitter > 0 {
		delay += time.Duration(rand.Float64() * c.Jitter * float64(delay))
	}
	return delay
}
