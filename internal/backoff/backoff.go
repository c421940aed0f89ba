// Package backoff holds the single reconnection policy shared by every
// surface that retries a connection, so diagnostic tools and tests do not
// grow their own divergent copies.
package backoff

import (
	"context"
	"fmt"
	"time"
)

// Policy computes exponential delays: Base * 2^attempt, capped at Cap, for at
// most MaxAttempts attempts.
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// Default matches the documented diagnostic behavior: 1s base, 30s cap,
// five attempts.
func Default() Policy {
	return Policy{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 5}
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}

// Retry runs fn until it succeeds, MaxAttempts is reached, or the context
// ends. The first attempt runs immediately.
func (p Policy) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, lastErr)
}
