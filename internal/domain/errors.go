package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrNoPredictions      = errors.New("no predictions to combine")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrQueueLimitExceeded = errors.New("queue limit exceeded")
	ErrAlreadyTerminal    = errors.New("simulation already in a terminal state")
	ErrProcessingTimeout  = errors.New("processing timeout")
	ErrServiceDegraded    = errors.New("service degraded; short-circuiting")
)

// InsufficientConfidenceError reports that every candidate prediction fell
// below the configured confidence threshold.
type InsufficientConfidenceError struct {
	Threshold     float64
	OriginalCount int
}

func (e *InsufficientConfidenceError) Error() string {
	return fmt.Sprintf("no prediction met confidence threshold %.2f (%d candidates)", e.Threshold, e.OriginalCount)
}

// APIError wraps a failed provider call. Server-side and timeout statuses are
// retryable; validation and auth failures are not.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429
}

// RateLimitError is retryable and carries the provider-declared backoff.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider %s rate limited; retry after %s", e.Provider, e.RetryAfter)
}

// TotalFailureError marks exhaustion of both the primary and fallback paths.
type TotalFailureError struct {
	Primary  error
	Fallback error
}

func (e *TotalFailureError) Error() string {
	return fmt.Sprintf("total failure: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *TotalFailureError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// Retryable classifies an error per the propagation policy: timeouts, 5xx
// provider statuses, and rate limits retry; everything else short-circuits.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	return errors.Is(err, ErrProcessingTimeout)
}
