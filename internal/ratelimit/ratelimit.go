// Package ratelimit guards the report endpoints. One season report can fan
// out into hundreds of provider lookups, so inbound requests are limited per
// client before any upstream work starts.
//
// MemoryLimiter is a per-process token bucket. A shared implementation (for
// several replicas behind one provider quota) can be substituted; the Limiter
// interface is the contract.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// Remaining is the number of whole requests still available right now.
	Remaining int
	// RetryAfter is how long until the next request would be allowed. Zero
	// when Allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes one request for key. Returning an error signals a
	// limiter malfunction; callers fail open rather than blocking traffic.
	Allow(ctx context.Context, key string) (Decision, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always allows.
func (NoopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true, Remaining: -1}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
