// Package countdown implements the cancellable per-lobby countdown
// ticker. A generation counter invalidates any tick that was already
// in flight when Cancel was called, so a caller never needs a hard
// kill of the underlying goroutine.
package countdown

import (
	"context"
	"sync"
	"time"
)

// TickFunc is invoked once per second while a countdown is running.
// gen identifies which Start call this tick belongs to; callers must
// discard ticks whose generation no longer matches Timer.Generation().
type TickFunc func(gen uint64, secondsRemaining int)

// CompleteFunc is invoked once, when a countdown reaches zero. A call
// that races a Cancel carries a stale generation, which callers must
// discard as they do for ticks.
type CompleteFunc func(gen uint64)

// Timer is a single lobby's countdown handle. The zero value is ready
// to use.
type Timer struct {
	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

// Start begins a new countdown of the given total duration in whole
// seconds, emitting tick(gen, n) for n = duration-1 downto 0, then
// complete(gen) once. Starting a new countdown implicitly cancels any
// countdown already running on this Timer. Returns the generation
// assigned to this run, which the caller must compare against
// Generation() before acting on any tick/complete callback, since the
// callback may already be queued when a cancel races it.
func (t *Timer) Start(durationSeconds int, tick TickFunc, complete CompleteFunc) uint64 {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.generation++
	gen := t.generation
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(ctx, gen, durationSeconds, tick, complete)
	return gen
}

func (t *Timer) run(ctx context.Context, gen uint64, durationSeconds int, tick TickFunc, complete CompleteFunc) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	remaining := durationSeconds - 1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(gen, remaining)
			if remaining == 0 {
				// Completion rides the same tick that announced zero,
				// keeping the cadence uniform through the transition.
				complete(gen)
				return
			}
			remaining--
		}
	}
}

// Cancel stops the active countdown, if any, and advances the
// generation. Idempotent and safe to call from any state; a tick or
// completion callback of the cancelled run that was already in flight
// carries a generation that no longer matches Generation(), so callers
// discard it.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
		t.generation++
	}
}

// Active reports whether a countdown is currently running.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Generation returns the current generation, which every Start and
// every Cancel of a running countdown advances. Callers use this inside tick/complete
// callbacks, under the owning lobby's lock, to discard stale
// callbacks from a countdown that has since been cancelled or
// restarted.
func (t *Timer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// MarkComplete clears the active handle once a countdown has finished
// on its own (as opposed to being cancelled). Callers should invoke
// this from within CompleteFunc, under the owning lobby's lock, after
// verifying gen == Generation().
func (t *Timer) MarkComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
