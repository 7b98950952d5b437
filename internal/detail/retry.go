package detail

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy describes how failed detail lookups are retried.
//
// Rate-limited lookups are retried with exponential backoff until
// MaxAttempts total attempts have been made. Other transient failures are
// retried TransientRetries times (0 or 1) without backoff. Not-found
// responses are never retried.
type RetryPolicy struct {
	MaxAttempts      int           // total attempts for rate-limited lookups, including the first
	BaseDelay        time.Duration // delay before the first retry
	MaxDelay         time.Duration // cap for any single delay
	Jitter           float64       // fraction of the delay added as random jitter, 0..1
	TransientRetries int           // retries for non-rate-limit failures, clamped to [0, 1]
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      4,
		BaseDelay:        500 * time.Millisecond,
		MaxDelay:         8 * time.Second,
		Jitter:           0.2,
		TransientRetries: 0,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = p.BaseDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	} else if p.Jitter > 1 {
		p.Jitter = 1
	}
	if p.TransientRetries < 0 {
		p.TransientRetries = 0
	} else if p.TransientRetries > 1 {
		p.TransientRetries = 1
	}
	return p
}

// Delay returns the wait before retry number retry (0-based), without jitter.
// A provider hint (Retry-After) wins when it is longer than the computed
// backoff. Both are capped at MaxDelay.
func (p RetryPolicy) Delay(retry int, hint time.Duration) time.Duration {
	p = p.normalized()
	d := p.BaseDelay
	for i := 0; i < retry && d < p.MaxDelay; i++ {
		d *= 2
	}
	if hint > d {
		d = hint
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p RetryPolicy) withJitter(d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	span := int64(float64(d) * p.Jitter)
	if span <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(span)) //nolint:gosec // jitter doesn't need crypto-strength randomness
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
