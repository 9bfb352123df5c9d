// Package crm provides the client for the quota-limited CRM API. Each method
// performs exactly one HTTP round trip; pacing and retries are owned by the
// scheduler and executor layers above it.
package crm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// APIError is a non-2xx response from the CRM API. RetryAfter carries the
// parsed Retry-After hint when the server sent one (zero otherwise).
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("crm api: status %d (retry after %s): %s", e.StatusCode, e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("crm api: status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err should be retried: connection-level
// failures and the transient status codes 429/500/502/503/504. Any other
// API status is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// No status attached: a transport error (timeout, connection reset,
	// DNS). All of these are retryable.
	return true
}

// RetryAfterHint extracts the server-supplied retry delay from err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// ParseRetryAfter parses a Retry-After header value, which is either a
// number of seconds or an HTTP-date. Returns 0, false when absent or
// unparseable.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
