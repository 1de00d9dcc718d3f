package application

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

type retryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

func (p retryPolicy) withDefaults() retryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	return p
}

// delayFor computes the jittered exponential backoff for a zero-based
// attempt. Rate-limit errors override it with the provider-declared delay.
func (p retryPolicy) delayFor(attempt int, err error) time.Duration {
	var rateErr *domain.RateLimitError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > 0 {
		if rateErr.RetryAfter > p.MaxDelay {
			return p.MaxDelay
		}
		return rateErr.RetryAfter
	}

	delay := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.Multiplier
	}
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	// Full jitter keeps concurrent retries from synchronizing.
	return time.Duration(delay * (0.5 + 0.5*rand.Float64()))
}

// withRetry runs fn up to MaxAttempts times, backing off between retryable
// failures. Non-retryable failures short-circuit immediately.
func withRetry(ctx context.Context, policy retryPolicy, fn func(ctx context.Context) error) error {
	policy = policy.withDefaults()
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !domain.Retryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.delayFor(attempt, lastErr)):
		}
	}
	return lastErr
}
