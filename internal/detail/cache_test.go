package detail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/testutil"
)

// fakeFetcher counts calls per activity and delegates to fn.
type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(id string, call int) (model.ActivitySnapshot, error)
}

func newFakeFetcher(fn func(id string, call int) (model.ActivitySnapshot, error)) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), fn: fn}
}

func (f *fakeFetcher) FetchActivityDetail(_ context.Context, id string) (model.ActivitySnapshot, error) {
	f.mu.Lock()
	f.calls[id]++
	n := f.calls[id]
	f.mu.Unlock()
	return f.fn(id, n)
}

func (f *fakeFetcher) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func snapshotOK(id string, _ int) (model.ActivitySnapshot, error) {
	return model.ActivitySnapshot{ActivityID: id, Badges: []model.BadgeValue{{BadgeID: "km", Value: 42}}}, nil
}

// newTestCache returns a cache whose sleeps are recorded instead of waited.
func newTestCache(f Fetcher, opts Options) (*Cache, *[]time.Duration) {
	c := New(f, opts, testutil.TestLogger())
	var (
		mu     sync.Mutex
		sleeps []time.Duration
	)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	return c, &sleeps
}

func TestCache_GetResolvesOnce(t *testing.T) {
	f := newFakeFetcher(snapshotOK)
	c, _ := newTestCache(f, DefaultOptions())

	r := c.Get(context.Background(), "a1")
	require.True(t, r.OK())
	v, ok := r.Snapshot.Value("km")
	require.True(t, ok)
	assert.Equal(t, 42.0, v)

	r = c.Get(context.Background(), "a1")
	assert.True(t, r.OK())
	assert.Equal(t, 1, f.count("a1"), "resolved entries are served from cache")
}

func TestCache_ConcurrentGetsCoalesce(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	f := newFakeFetcher(func(id string, call int) (model.ActivitySnapshot, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return snapshotOK(id, call)
	})
	c, _ := newTestCache(f, DefaultOptions())

	const n = 20
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Get(context.Background(), "shared")
		}()
	}

	<-started
	assert.Equal(t, 1, c.Stats().Pending, "entry is pending while the lookup is in flight")
	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.count("shared"), "N concurrent requests must produce exactly one upstream call")
	for _, r := range results {
		assert.True(t, r.OK())
	}
}

func TestCache_NotFoundIsPermanent(t *testing.T) {
	f := newFakeFetcher(func(string, int) (model.ActivitySnapshot, error) {
		return model.ActivitySnapshot{}, model.ErrNotFound
	})
	c, sleeps := newTestCache(f, DefaultOptions())

	r := c.Get(context.Background(), "gone")
	assert.Equal(t, StateFailedPermanent, r.State)
	assert.False(t, r.OK())

	r = c.Get(context.Background(), "gone")
	assert.Equal(t, StateFailedPermanent, r.State)
	assert.Equal(t, 1, f.count("gone"), "not-found is never retried")
	assert.Empty(t, *sleeps)
}

func TestCache_RateLimitBackoffThenSuccess(t *testing.T) {
	f := newFakeFetcher(func(id string, call int) (model.ActivitySnapshot, error) {
		if call < 3 {
			return model.ActivitySnapshot{}, &model.RateLimitError{}
		}
		return snapshotOK(id, call)
	})
	opts := DefaultOptions()
	opts.Retry = RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	c, sleeps := newTestCache(f, opts)

	r := c.Get(context.Background(), "busy")
	require.True(t, r.OK())
	assert.Equal(t, 3, f.count("busy"))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestCache_RateLimitExhaustedIsTransient(t *testing.T) {
	f := newFakeFetcher(func(string, int) (model.ActivitySnapshot, error) {
		return model.ActivitySnapshot{}, &model.RateLimitError{RetryAfter: 3 * time.Second}
	})
	opts := DefaultOptions()
	opts.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
	c, sleeps := newTestCache(f, opts)

	r := c.Get(context.Background(), "busy")
	assert.Equal(t, StateFailedTransient, r.State)
	assert.True(t, errors.Is(r.Err, model.ErrRateLimited))
	assert.Equal(t, 3, f.count("busy"))
	// Retry-After exceeds the backoff but is capped at MaxDelay.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *sleeps)

	// Transient entries are looked up again on the next Get.
	c.Get(context.Background(), "busy")
	assert.Equal(t, 6, f.count("busy"))
}

func TestCache_TransientErrorNoRetryByDefault(t *testing.T) {
	f := newFakeFetcher(func(string, int) (model.ActivitySnapshot, error) {
		return model.ActivitySnapshot{}, errors.New("connection reset")
	})
	c, sleeps := newTestCache(f, DefaultOptions())

	r := c.Get(context.Background(), "flaky")
	assert.Equal(t, StateFailedTransient, r.State)
	assert.Equal(t, 1, f.count("flaky"))
	assert.Empty(t, *sleeps)
}

func TestCache_TransientRetriedAtMostOnce(t *testing.T) {
	f := newFakeFetcher(func(id string, call int) (model.ActivitySnapshot, error) {
		return model.ActivitySnapshot{}, model.ErrTransient
	})
	opts := DefaultOptions()
	opts.Retry.TransientRetries = 5 // clamped to 1
	c, _ := newTestCache(f, opts)

	r := c.Get(context.Background(), "flaky")
	assert.Equal(t, StateFailedTransient, r.State)
	assert.Equal(t, 2, f.count("flaky"))
}

func TestCache_GetBatchPartitionsAndPaces(t *testing.T) {
	f := newFakeFetcher(snapshotOK)
	opts := DefaultOptions()
	opts.BatchSize = 2
	opts.BatchPause = 50 * time.Millisecond
	c, sleeps := newTestCache(f, opts)

	// Pre-warm one entry so it is served from cache.
	c.Get(context.Background(), "a")

	got := c.GetBatch(context.Background(), []string{"a", "b", "c", "b", "d", "e"})
	require.Len(t, got, 5)
	for id, r := range got {
		assert.True(t, r.OK(), id)
	}
	assert.Equal(t, 5, f.total(), "each activity fetched exactly once")
	// The warm-up lookup opened the first group: a,b | c,d | e.
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, *sleeps)
}

func TestCache_PacingSpansBatchCalls(t *testing.T) {
	f := newFakeFetcher(snapshotOK)
	opts := DefaultOptions()
	opts.BatchSize = 3
	opts.BatchPause = 10 * time.Millisecond
	c, sleeps := newTestCache(f, opts)

	// Small chunks, as a history scan issues them.
	for _, chunk := range [][]string{{"a", "b"}, {"c", "d"}, {"e", "f"}, {"g", "h"}} {
		got := c.GetBatch(context.Background(), chunk)
		require.Len(t, got, 2)
	}
	assert.Equal(t, 8, f.total())
	// a,b,c | d,e,f | g,h
	assert.Len(t, *sleeps, 2)
}

func TestCache_CachedEntriesDoNotPace(t *testing.T) {
	f := newFakeFetcher(snapshotOK)
	opts := DefaultOptions()
	opts.BatchSize = 2
	c, sleeps := newTestCache(f, opts)

	c.GetBatch(context.Background(), []string{"a", "b"})
	for range 3 {
		c.GetBatch(context.Background(), []string{"a", "b"})
	}
	assert.Equal(t, 2, f.total())
	assert.Empty(t, *sleeps)
}

func TestCache_FanOutBoundSharedAcrossCallers(t *testing.T) {
	var (
		mu     sync.Mutex
		active int
		peak   int
	)
	f := newFakeFetcher(func(id string, call int) (model.ActivitySnapshot, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return snapshotOK(id, call)
	})
	opts := DefaultOptions()
	opts.BatchSize = 3
	c, _ := newTestCache(f, opts)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]string, 5)
			for i := range ids {
				ids[i] = fmt.Sprintf("w%d-%d", w, i)
			}
			c.GetBatch(context.Background(), ids)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, f.total())
	assert.LessOrEqual(t, peak, 3, "concurrent callers share one fan-out bound")
}

func TestCache_GetBatchBoundedConcurrency(t *testing.T) {
	var (
		mu     sync.Mutex
		active int
		peak   int
	)
	f := newFakeFetcher(func(id string, call int) (model.ActivitySnapshot, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return snapshotOK(id, call)
	})
	opts := DefaultOptions()
	opts.BatchSize = 3
	c, _ := newTestCache(f, opts)

	ids := []string{"1", "2", "3", "4", "5", "6", "7"}
	got := c.GetBatch(context.Background(), ids)
	assert.Len(t, got, len(ids))
	assert.LessOrEqual(t, peak, 3)
}

func TestCache_GetBatchCancelled(t *testing.T) {
	f := newFakeFetcher(snapshotOK)
	c, _ := newTestCache(f, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := c.GetBatch(ctx, []string{"a", "b"})
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, StateFailedTransient, r.State)
	}
	assert.Zero(t, f.total())
	assert.Zero(t, c.Stats().Entries, "cancelled ids are not cached")
}

func TestCache_ClearAndStats(t *testing.T) {
	f := newFakeFetcher(func(id string, call int) (model.ActivitySnapshot, error) {
		if id == "missing" {
			return model.ActivitySnapshot{}, model.ErrNotFound
		}
		return snapshotOK(id, call)
	})
	c, _ := newTestCache(f, DefaultOptions())

	c.GetBatch(context.Background(), []string{"a", "b", "missing"})
	s := c.Stats()
	assert.Equal(t, 3, s.Entries)
	assert.Equal(t, 2, s.Resolved)
	assert.Equal(t, 1, s.FailedPermanent)
	assert.Equal(t, int64(3), s.Fetches)

	c.Clear()
	assert.Zero(t, c.Stats().Entries)

	c.Get(context.Background(), "a")
	assert.Equal(t, 2, f.count("a"), "cleared entries are fetched again")
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 250 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 250*time.Millisecond, p.Delay(0, 0))
	assert.Equal(t, 500*time.Millisecond, p.Delay(1, 0))
	assert.Equal(t, time.Second, p.Delay(2, 0))
	assert.Equal(t, time.Second, p.Delay(6, 0))
	assert.Equal(t, 800*time.Millisecond, p.Delay(0, 800*time.Millisecond), "longer Retry-After wins")
	assert.Equal(t, time.Second, p.Delay(0, time.Minute), "hint is capped")
}
