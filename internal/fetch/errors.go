package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrRequestFailed wraps every terminal failure of Execute.
	ErrRequestFailed = errors.New("request failed")
	// ErrCircuitOpen means the breaker rejected the call without a network request.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// errAbandoned marks an attempt cut short by the caller's context.
	errAbandoned = errors.New("request abandoned by caller")
)

// StatusError is a retryable HTTP status (429 or 5xx).
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// parseRetryAfter reads a Retry-After header given as delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
