package detail

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingSleep() (func(context.Context, time.Duration) error, func() int) {
	var (
		mu sync.Mutex
		n  int
	)
	sleep := func(ctx context.Context, _ time.Duration) error {
		mu.Lock()
		n++
		mu.Unlock()
		return ctx.Err()
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return n
	}
	return sleep, count
}

func TestPacer_PausesAfterFullGroup(t *testing.T) {
	sleep, pauses := recordingSleep()
	p := newPacer(2, time.Second, sleep)
	ctx := context.Background()

	require.NoError(t, p.acquire(ctx))
	require.NoError(t, p.acquire(ctx))
	p.release()
	p.release()
	assert.Zero(t, pauses(), "no pause until another lookup needs a slot")

	require.NoError(t, p.acquire(ctx))
	assert.Equal(t, 1, pauses())
	p.release()

	// A partial group that drains does not pause.
	require.NoError(t, p.acquire(ctx))
	p.release()
	assert.Equal(t, 1, pauses())
}

func TestPacer_ZeroPauseNeverSleeps(t *testing.T) {
	sleep, pauses := recordingSleep()
	p := newPacer(1, 0, sleep)
	for range 5 {
		require.NoError(t, p.acquire(context.Background()))
		p.release()
	}
	assert.Zero(t, pauses())
}

func TestPacer_FullGroupBlocksUntilDrained(t *testing.T) {
	sleep, _ := recordingSleep()
	p := newPacer(1, 0, sleep)
	require.NoError(t, p.acquire(context.Background()))

	acquired := make(chan struct{})
	go func() {
		if p.acquire(context.Background()) == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lookup admitted while the group was full")
	case <-time.After(20 * time.Millisecond):
	}

	p.release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lookup not admitted after the group drained")
	}
	p.release()
}

func TestPacer_CancelledWhileWaiting(t *testing.T) {
	sleep, _ := recordingSleep()
	p := newPacer(1, 0, sleep)
	require.NoError(t, p.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.acquire(ctx), context.Canceled)

	p.release()
	assert.NoError(t, p.acquire(context.Background()), "a cancelled waiter holds no slot")
	p.release()
}

func TestPacer_FailedPauseIsRetaken(t *testing.T) {
	sleep, pauses := recordingSleep()
	p := newPacer(1, time.Second, sleep)
	require.NoError(t, p.acquire(context.Background()))
	p.release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.acquire(ctx))

	require.NoError(t, p.acquire(context.Background()))
	assert.Equal(t, 2, pauses(), "the interrupted pause is taken again")
	p.release()
}
