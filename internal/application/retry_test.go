package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

func fastPolicy(maxAttempts int) retryPolicy {
	return retryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  2,
	}
}

func TestWithRetryStopsOnFirstSuccess(t *testing.T) {
	t.Parallel()
	calls := 0
	err := withRetry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected single successful call, got calls=%d err=%v", calls, err)
	}
}

func TestWithRetryShortCircuitsNonRetryableErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	boom := errors.New("schema mismatch")
	err := withRetry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable error should not be retried, got %d calls", calls)
	}
}

func TestWithRetryRetriesServerErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	err := withRetry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return &domain.APIError{Provider: "model-api", StatusCode: 503, Message: "unavailable"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	var rateErr *domain.RateLimitError
	err := withRetry(context.Background(), fastPolicy(2), func(context.Context) error {
		calls++
		return &domain.RateLimitError{Provider: "model-api", RetryAfter: time.Millisecond}
	})
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected the last rate-limit error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected exactly MaxAttempts calls, got %d", calls)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := retryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := withRetry(ctx, policy, func(context.Context) error {
		calls++
		return &domain.APIError{Provider: "model-api", StatusCode: 500, Message: "boom"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("cancellation during backoff should stop retries, got %d calls", calls)
	}
}

func TestDelayForPrefersRateLimitHint(t *testing.T) {
	t.Parallel()
	policy := retryPolicy{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}.withDefaults()

	hinted := policy.delayFor(0, &domain.RateLimitError{Provider: "model-api", RetryAfter: 3 * time.Second})
	if hinted != 3*time.Second {
		t.Fatalf("expected provider-declared delay, got %v", hinted)
	}
	capped := policy.delayFor(0, &domain.RateLimitError{Provider: "model-api", RetryAfter: time.Minute})
	if capped != 10*time.Second {
		t.Fatalf("rate-limit delay should be capped at MaxDelay, got %v", capped)
	}
}

func TestDelayForBacksOffExponentiallyWithJitter(t *testing.T) {
	t.Parallel()
	policy := retryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 2}.withDefaults()
	serverErr := &domain.APIError{Provider: "model-api", StatusCode: 500, Message: "boom"}

	for attempt, ceiling := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond} {
		d := policy.delayFor(attempt, serverErr)
		if d < ceiling/2 || d > ceiling {
			t.Fatalf("attempt %d delay %v outside jitter range [%v, %v]", attempt, d, ceiling/2, ceiling)
		}
	}
}

func TestErrorTrackerWindowAndReset(t *testing.T) {
	t.Parallel()
	tracker := NewErrorTracker(time.Minute, 3)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tracker.nowFn = func() time.Time { return now }

	tracker.Record("model-api")
	tracker.Record("model-api")
	if tracker.Degraded("model-api") {
		t.Fatalf("two errors under a threshold of three should not degrade")
	}
	tracker.Record("model-api")
	if !tracker.Degraded("model-api") {
		t.Fatalf("three errors should degrade the service")
	}
	if tracker.Degraded("other-api") {
		t.Fatalf("degradation must be per service")
	}

	// The window slides: old errors fall out.
	now = now.Add(2 * time.Minute)
	if tracker.Degraded("model-api") {
		t.Fatalf("errors outside the window should be pruned")
	}

	now = now.Add(time.Second)
	tracker.Record("model-api")
	tracker.Record("model-api")
	tracker.Record("model-api")
	tracker.Reset("model-api")
	if tracker.Degraded("model-api") {
		t.Fatalf("reset should clear the window")
	}
}

func TestRetryableClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"server_error", &domain.APIError{Provider: "s", StatusCode: 500}, true},
		{"timeout_status", &domain.APIError{Provider: "s", StatusCode: 408}, true},
		{"too_many_requests", &domain.APIError{Provider: "s", StatusCode: 429}, true},
		{"client_error", &domain.APIError{Provider: "s", StatusCode: 400}, false},
		{"rate_limit", &domain.RateLimitError{Provider: "s"}, true},
		{"processing_timeout", domain.ErrProcessingTimeout, true},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := domain.Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
