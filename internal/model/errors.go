package model

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for external lookups. Callers match with errors.Is.
var (
	// ErrNotFound marks a permanently missing activity or achievement.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited marks a lookup rejected by the upstream rate limiter.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient marks any other failed lookup that may succeed later.
	ErrTransient = errors.New("transient upstream error")

	// ErrMalformedRecord marks an achievement record that cannot be used.
	ErrMalformedRecord = errors.New("malformed achievement record")

	// ErrUpstreamUnavailable marks a failed achievement list or history fetch.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// RateLimitError carries the provider's requested wait, if it sent one.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

// Is lets errors.Is(err, ErrRateLimited) match a *RateLimitError.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
