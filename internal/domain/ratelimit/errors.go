package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the limiter.
var (
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	ErrInvalidKey       = errors.New("invalid rate limit key")
)

// LimitError is returned by Guard when a key has no tokens left.
type LimitError struct {
	Status  int
	RetryAt int64 // epoch milliseconds
	Key     string
}

func newLimitError(key string, retryAtMs int64) *LimitError {
	return &LimitError{Status: http.StatusTooManyRequests, RetryAt: retryAtMs, Key: key}
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q, retry at %d", e.Key, e.RetryAt)
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }
