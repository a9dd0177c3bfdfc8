package worker

import (
	"math"
	"time"

	"nordagri/internal/config"
)

// RetryPolicy defines exponential backoff parameters for re-flushing a queue
// that still holds failed operations.
type RetryPolicy struct {
	// MaxAttempts of 0 keeps rescheduling until a flush completes.
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// RetryPolicyFromConfig returns nil when backoff re-flush is disabled.
func RetryPolicyFromConfig(cfg config.SyncConfig) *RetryPolicy {
	if cfg.InitialDelay <= 0 {
		return nil
	}
	return &RetryPolicy{
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		return r.MaxDelay
	}
	d := time.Duration(delay)
	if d <= 0 {
		// Overflowed; fall back to the cap or the initial delay.
		if r.MaxDelay > 0 {
			return r.MaxDelay
		}
		return r.InitialDelay
	}
	return d
}

// Exhausted reports whether attempt is past MaxAttempts.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return r.MaxAttempts > 0 && attempt > r.MaxAttempts
}
