package countdown

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartEmitsTicksThenCompletes(t *testing.T) {
	var mu sync.Mutex
	var ticks []int
	completed := make(chan struct{}, 1)

	timer := &Timer{}
	start := time.Now()
	gen := timer.Start(3, func(g uint64, secondsRemaining int) {
		mu.Lock()
		ticks = append(ticks, secondsRemaining)
		mu.Unlock()
	}, func(g uint64) {
		timer.MarkComplete()
		completed <- struct{}{}
	})
	require.Equal(t, uint64(1), gen)

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("countdown never completed")
	}

	// Completion lands on the final tick: a 3-second countdown takes
	// 3 seconds, not 4.
	require.InDelta(t, 3.0, time.Since(start).Seconds(), 0.5)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{2, 1, 0}, ticks)
	require.False(t, timer.Active())
}

func TestCancelPreventsCompletion(t *testing.T) {
	timer := &Timer{}
	completed := make(chan struct{}, 1)

	timer.Start(3, func(uint64, int) {}, func(uint64) {
		completed <- struct{}{}
	})
	timer.Cancel()

	select {
	case <-completed:
		t.Fatal("cancelled countdown must not complete")
	case <-time.After(4 * time.Second):
	}
	require.False(t, timer.Active())
}

func TestCancelIsIdempotent(t *testing.T) {
	timer := &Timer{}
	timer.Cancel()
	timer.Cancel()
	require.False(t, timer.Active())
}

func TestStartingAgainBumpsGeneration(t *testing.T) {
	timer := &Timer{}
	g1 := timer.Start(10, func(uint64, int) {}, func(uint64) {})
	g2 := timer.Start(10, func(uint64, int) {}, func(uint64) {})
	timer.Cancel()
	require.NotEqual(t, g1, g2)
	require.Equal(t, g2+1, timer.Generation())
}
