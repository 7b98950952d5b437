package detail

import (
	"context"
	"sync"
	"time"
)

// pacer admits upstream lookups in groups of at most size. Once a full group
// has finished, the next lookup waits pause before a new group opens. All
// callers of a Cache share one pacer, so the fan-out and pacing hold for the
// whole run no matter how the lookups are split across GetBatch calls and
// badge resolutions.
type pacer struct {
	size  int
	pause time.Duration
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	admitted int           // lookups started in the current group
	active   int           // lookups still running
	drained  chan struct{} // closed when a full group has finished
	pauseDue bool          // a group finished; the next lookup pauses first
	resumed  chan struct{} // non-nil while a pause is in progress
}

func newPacer(size int, pause time.Duration, sleep func(ctx context.Context, d time.Duration) error) *pacer {
	return &pacer{
		size:    size,
		pause:   pause,
		sleep:   sleep,
		drained: make(chan struct{}),
	}
}

// acquire blocks until the caller may start an upstream lookup. Every
// successful acquire must be paired with release.
func (p *pacer) acquire(ctx context.Context) error {
	for {
		p.mu.Lock()
		switch {
		case p.resumed != nil:
			ch := p.resumed
			p.mu.Unlock()
			if err := waitFor(ctx, ch); err != nil {
				return err
			}

		case p.pauseDue:
			// This caller takes the pause; later arrivals wait on resumed.
			p.pauseDue = false
			ch := make(chan struct{})
			p.resumed = ch
			p.mu.Unlock()

			err := p.sleep(ctx, p.pause)

			p.mu.Lock()
			p.resumed = nil
			if err != nil {
				p.pauseDue = true
			}
			close(ch)
			p.mu.Unlock()
			if err != nil {
				return err
			}

		case p.admitted < p.size:
			p.admitted++
			p.active++
			p.mu.Unlock()
			return nil

		default:
			ch := p.drained
			p.mu.Unlock()
			if err := waitFor(ctx, ch); err != nil {
				return err
			}
		}
	}
}

func (p *pacer) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	if p.active == 0 && p.admitted >= p.size {
		p.admitted = 0
		p.pauseDue = p.pause > 0
		close(p.drained)
		p.drained = make(chan struct{})
	}
}

func waitFor(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
