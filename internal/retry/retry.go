// Package retry implements the bounded exponential-backoff retry used to
// resolve version-conflicted writes: context-aware sleep, jitter via a
// sine wave to avoid thundering-herd retries, capped attempts.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config controls retry timing.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultConflictRetry is the "retry up to 3x with exponential backoff"
// policy for version-conflicted writes.
func DefaultConflictRetry() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  20 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Do runs fn up to cfg.MaxAttempts times, retrying only while
// shouldRetry(err) holds. It sleeps between attempts with exponential
// backoff and jitter, honoring ctx cancellation.
func Do(ctx context.Context, cfg Config, shouldRetry func(error) bool, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !shouldRetry(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
		if cfg.JitterEnabled {
			jitter := time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
			delay += jitter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry: max attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}
