// Package resilience provides fault-tolerance primitives: exponential-backoff
// retry and a context-based timeout wrapper.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryConfig controls attempt count and backoff timing. Zero fields fall
// back to the package defaults.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = 100 * time.Millisecond
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 10 * time.Second
	}
	if out.Multiplier <= 0 {
		out.Multiplier = 2.0
	}
	return out
}

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff,
// returning the last error when all attempts fail. Cancellation is checked
// before each attempt and during each backoff sleep.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context cancelled before attempt %d: %w", name, attempt, err)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		delay := backoffDelay(cfg, attempt)
		slog.Warn("operation failed, retrying",
			"operation", name,
			"attempt", attempt,
			"delay", delay,
			"error", lastErr,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: context cancelled during backoff: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", name, cfg.MaxAttempts, lastErr)
}

// backoffDelay caps the exponential term at MaxDelay first, then applies
// symmetric jitter, so the jittered delay can exceed MaxDelay by at most
// the jitter fraction.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	base := math.Min(
		float64(cfg.InitialDelay)*math.Pow(cfg.Multiplier, float64(attempt-1)),
		float64(cfg.MaxDelay),
	)
	jitter := base * cfg.JitterFraction * (2*rand.Float64() - 1)
	return time.Duration(base + jitter)
}
