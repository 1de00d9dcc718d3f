package application

import (
	"sync"
	"time"
)

// ErrorTracker is an orchestrator-scoped sliding error window used for
// circuit-breaking: a service with too many recent errors is considered
// degraded and callers short-circuit invoking it.
type ErrorTracker struct {
	window    time.Duration
	threshold int
	nowFn     func() time.Time

	mu     sync.Mutex
	errors map[string][]time.Time
}

func NewErrorTracker(window time.Duration, threshold int) *ErrorTracker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if threshold <= 0 {
		threshold = 5
	}
	return &ErrorTracker{
		window:    window,
		threshold: threshold,
		nowFn:     func() time.Time { return time.Now().UTC() },
		errors:    map[string][]time.Time{},
	}
}

// Record notes one error for the named service.
func (t *ErrorTracker) Record(service string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowFn()
	t.errors[service] = append(t.pruneLocked(service, now), now)
}

// Degraded reports whether the service has reached the error threshold
// inside the trailing window.
func (t *ErrorTracker) Degraded(service string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	recent := t.pruneLocked(service, t.nowFn())
	t.errors[service] = recent
	return len(recent) >= t.threshold
}

// Reset clears the window for a service, e.g. after a confirmed recovery.
func (t *ErrorTracker) Reset(service string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.errors, service)
}

func (t *ErrorTracker) pruneLocked(service string, now time.Time) []time.Time {
	cutoff := now.Add(-t.window)
	recent := t.errors[service][:0]
	for _, ts := range t.errors[service] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	return recent
}
