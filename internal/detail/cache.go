// Package detail resolves per-activity achievement snapshots exactly once
// per activity, no matter how many badge resolutions ask for the same
// activity concurrently.
//
// A Cache is run-scoped: construct one per resolution pass and Clear (or
// drop) it afterwards. Concurrent Get calls for the same activity collapse
// into a single upstream lookup via singleflight.
package detail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/telemetry"
)

// Fetcher performs the upstream per-activity lookup.
//
// Implementations return errors matching model.ErrNotFound for permanently
// missing activities and model.ErrRateLimited when throttled. Anything else
// is treated as transient.
type Fetcher interface {
	FetchActivityDetail(ctx context.Context, activityID string) (model.ActivitySnapshot, error)
}

// State is the lifecycle state of one cache entry.
type State string

const (
	StatePending         State = "pending"
	StateResolved        State = "resolved"
	StateFailedPermanent State = "failed_permanent"
	StateFailedTransient State = "failed_transient"
)

// terminal reports whether an entry in this state is served from cache
// without another lookup.
func (s State) terminal() bool {
	return s == StateResolved || s == StateFailedPermanent
}

// Result is the outcome of resolving one activity.
type Result struct {
	ActivityID string
	State      State
	Snapshot   model.ActivitySnapshot
	Err        error
}

// OK reports whether the snapshot is usable.
func (r Result) OK() bool {
	return r.State == StateResolved
}

// Options configures a Cache.
type Options struct {
	BatchSize  int           // upstream lookups per group, across the whole run
	BatchPause time.Duration // pause after each full group before the next starts
	Retry      RetryPolicy
}

// DefaultOptions returns a modest fan-out suitable for public providers.
func DefaultOptions() Options {
	return Options{
		BatchSize:  5,
		BatchPause: 250 * time.Millisecond,
		Retry:      DefaultRetryPolicy(),
	}
}

// Stats is a point-in-time view of the cache contents.
type Stats struct {
	Entries         int
	Pending         int
	Resolved        int
	FailedPermanent int
	FailedTransient int
	Fetches         int64 // upstream calls made, retries included
}

// Cache is a deduplicating, concurrency-bounded snapshot cache.
type Cache struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]Result
	gen     uint64 // bumped by Clear; stale lookups do not write back

	group   singleflight.Group
	fetches atomic.Int64
	pace    *pacer

	// sleep is swapped in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error

	lookups   metric.Int64Counter
	coalesced metric.Int64Counter
	fetchDur  metric.Float64Histogram
}

// New creates a Cache backed by fetcher.
func New(fetcher Fetcher, opts Options, logger *slog.Logger) *Cache {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.BatchPause < 0 {
		opts.BatchPause = 0
	}
	opts.Retry = opts.Retry.normalized()
	if logger == nil {
		logger = slog.Default()
	}

	meter := telemetry.Meter("kiroku/detail")
	lookups, _ := meter.Int64Counter("kiroku.detail.lookups",
		metric.WithDescription("Activity detail lookups by final outcome"),
	)
	coalesced, _ := meter.Int64Counter("kiroku.detail.coalesced",
		metric.WithDescription("Get calls served by joining an in-flight lookup"),
	)
	fetchDur, _ := meter.Float64Histogram("kiroku.detail.fetch.duration",
		metric.WithDescription("Time per upstream detail call (ms)"),
		metric.WithUnit("ms"),
	)

	c := &Cache{
		fetcher:   fetcher,
		opts:      opts,
		logger:    logger,
		entries:   make(map[string]Result),
		sleep:     sleepCtx,
		lookups:   lookups,
		coalesced: coalesced,
		fetchDur:  fetchDur,
	}
	c.pace = newPacer(opts.BatchSize, opts.BatchPause, func(ctx context.Context, d time.Duration) error {
		return c.sleep(ctx, d)
	})
	return c
}

// Get resolves activityID. Resolved and permanently failed entries return
// immediately; a pending entry joins the in-flight lookup; anything else
// starts a new lookup once the run's pacing admits it. Get never returns an
// error: failures are reported in the Result state and callers treat them
// as "no data at this activity".
func (c *Cache) Get(ctx context.Context, activityID string) Result {
	if r, ok := c.cached(activityID); ok {
		return r
	}

	v, _, shared := c.group.Do(activityID, func() (any, error) {
		// Another lookup may have finished between the check above and
		// entering the group.
		if r, ok := c.cached(activityID); ok {
			return r, nil
		}

		c.mu.Lock()
		gen := c.gen
		c.entries[activityID] = Result{ActivityID: activityID, State: StatePending}
		c.mu.Unlock()

		var r Result
		if err := c.pace.acquire(ctx); err != nil {
			r = Result{ActivityID: activityID, State: StateFailedTransient, Err: err}
		} else {
			// The lookup is shared by every waiter, so it must not die with
			// the first caller's context.
			r = c.lookup(context.WithoutCancel(ctx), activityID)
			c.pace.release()
		}

		c.mu.Lock()
		if c.gen == gen {
			c.entries[activityID] = r
		}
		c.mu.Unlock()

		c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(r.State))))
		return r, nil
	})
	if shared {
		c.coalesced.Add(ctx, 1)
	}
	return v.(Result)
}

// GetBatch resolves every id concurrently. Upstream lookups are admitted by
// the cache-wide pacer, so at most BatchSize run at once and BatchPause
// separates full groups, including lookups started by other callers.
// Duplicate ids are resolved once. If ctx is cancelled, ids not yet started
// are reported as transient failures without touching the cache.
func (c *Cache) GetBatch(ctx context.Context, activityIDs []string) map[string]Result {
	out := make(map[string]Result, len(activityIDs))
	var toFetch []string
	for _, id := range activityIDs {
		if _, done := out[id]; done {
			continue
		}
		if r, ok := c.cached(id); ok {
			out[id] = r
			continue
		}
		// Placeholder keeps duplicates out of toFetch.
		out[id] = Result{ActivityID: id, State: StatePending}
		toFetch = append(toFetch, id)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(c.opts.BatchSize)
	for _, id := range toFetch {
		g.Go(func() error {
			r := Result{ActivityID: id, State: StateFailedTransient, Err: ctx.Err()}
			if r.Err == nil {
				r = c.Get(ctx, id)
			}
			mu.Lock()
			out[id] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Clear drops every entry. Lookups still in flight complete but their
// results are discarded.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Result)
	c.gen++
}

// Stats returns entry counts by state and the number of upstream calls.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Entries: len(c.entries), Fetches: c.fetches.Load()}
	for _, r := range c.entries {
		switch r.State {
		case StatePending:
			s.Pending++
		case StateResolved:
			s.Resolved++
		case StateFailedPermanent:
			s.FailedPermanent++
		case StateFailedTransient:
			s.FailedTransient++
		}
	}
	return s
}

func (c *Cache) cached(activityID string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[activityID]
	if ok && r.State.terminal() {
		return r, true
	}
	return Result{}, false
}

// lookup calls the fetcher, applying the retry policy.
func (c *Cache) lookup(ctx context.Context, activityID string) Result {
	policy := c.opts.Retry
	rateLimited := 0
	transientRetries := 0

	for {
		c.fetches.Add(1)
		start := time.Now()
		snap, err := c.fetcher.FetchActivityDetail(ctx, activityID)
		c.fetchDur.Record(ctx, float64(time.Since(start).Milliseconds()))

		switch {
		case err == nil:
			if snap.ActivityID == "" {
				snap.ActivityID = activityID
			}
			return Result{ActivityID: activityID, State: StateResolved, Snapshot: snap}

		case errors.Is(err, model.ErrNotFound):
			c.logger.Debug("detail: activity not found", "activity_id", activityID)
			return Result{ActivityID: activityID, State: StateFailedPermanent, Err: err}

		case errors.Is(err, model.ErrRateLimited):
			rateLimited++
			if rateLimited >= policy.MaxAttempts {
				c.logger.Warn("detail: rate limit retries exhausted",
					"activity_id", activityID, "attempts", rateLimited)
				return Result{ActivityID: activityID, State: StateFailedTransient, Err: err}
			}
			var hint time.Duration
			var rl *model.RateLimitError
			if errors.As(err, &rl) {
				hint = rl.RetryAfter
			}
			delay := policy.withJitter(policy.Delay(rateLimited-1, hint))
			c.logger.Debug("detail: rate limited, backing off",
				"activity_id", activityID, "attempt", rateLimited, "delay", delay)
			if serr := c.sleep(ctx, delay); serr != nil {
				return Result{ActivityID: activityID, State: StateFailedTransient, Err: serr}
			}

		default:
			if transientRetries < policy.TransientRetries {
				transientRetries++
				continue
			}
			c.logger.Warn("detail: lookup failed", "activity_id", activityID, "error", err)
			return Result{ActivityID: activityID, State: StateFailedTransient, Err: err}
		}
	}
}
