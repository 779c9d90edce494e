// Package backoff provides exponential backoff for retried deliveries.
package backoff

import (
	"context"
	"math"
	"time"
)

// Defaults suit short-lived processes where a retry should not stall the run.
const (
	DefaultInitial = 200 * time.Millisecond
	DefaultMax     = 2 * time.Second
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration
	Max     time.Duration
}

func (c *Config) bounds() (initial, maxDelay time.Duration) {
	initial, maxDelay = DefaultInitial, DefaultMax
	if c != nil {
		if c.Initial > 0 {
			initial = c.Initial
		}
		if c.Max > 0 {
			maxDelay = c.Max
		}
	}
	return initial, maxDelay
}

// Exponential returns the delay before the given retry attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, and so on up to max.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, maxDelay := cfg.bounds()
	if attempt < 1 {
		return initial
	}

	delay := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}

// Wait sleeps for the backoff of attempt, returning early with the context
// error if ctx is done first.
func Wait(ctx context.Context, attempt int, cfg *Config) error {
	timer := time.NewTimer(Exponential(attempt, cfg))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
