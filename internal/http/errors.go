package http

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RateLimitError indicates the server throttled the request (429 or 503).
type RateLimitError struct {
	StatusCode int
	// RetryAfter is the wait the server asked for, or the limiter's own
	// backoff when that is longer.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (status %d): retry after %v", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// HTTPError indicates any other non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d", e.StatusCode)
}

// ErrCircuitOpen is returned while a host's circuit is open.
var ErrCircuitOpen = errors.New("http: circuit breaker is open")

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return rlErr.StatusCode
	}
	return 0
}

// IsTransientHTTPError reports whether err should count against a host's
// circuit. Client errors other than throttling do not.
func IsTransientHTTPError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return true
}
