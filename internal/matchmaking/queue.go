// Package matchmaking implements the FIFO queue of solo players
// awaiting automatic pairing, matched off against the lobby registry
// as new devices arrive.
package matchmaking

import (
	"context"
	"sync"
	"time"

	"github.com/duskforge/lobby/internal/apierr"
	"github.com/duskforge/lobby/internal/eventsink"
	"github.com/duskforge/lobby/internal/registry"
)

const defaultETASeconds = 30

// pairer is the subset of *registry.Registry the queue needs, narrowed
// so this package's dependency surface is explicit and mockable.
type pairer interface {
	HasLobby(deviceID string) bool
	Pair(ctx context.Context, a, b string) (registry.Snapshot, error)
}

type waiter struct {
	deviceID string
	queuedAt time.Time
}

// Queue is the FIFO matchmaking queue. mu is acquired before the
// registry index lock whenever FindMatch pairs two waiters; the fixed
// lock order rules out a deadlock cycle with create/join's
// registry-only path.
type Queue struct {
	mu      sync.Mutex
	waiters []waiter

	reg        pairer
	sink       eventsink.Sink
	etaSeconds int
}

// New constructs a Queue bound to the given registry. etaSeconds <= 0
// falls back to the default wait estimate.
func New(reg pairer, sink eventsink.Sink, etaSeconds int) *Queue {
	if etaSeconds <= 0 {
		etaSeconds = defaultETASeconds
	}
	return &Queue{reg: reg, sink: sink, etaSeconds: etaSeconds}
}

// FindMatch pops the head waiter and pairs it with deviceID, or
// enqueues deviceID when nobody is waiting. It holds the queue lock
// for the whole call, including the nested Pair call when a match is
// found, satisfying the fixed queue-before-registry lock order.
func (q *Queue) FindMatch(ctx context.Context, deviceID string) (Result, error) {
	if q.reg.HasLobby(deviceID) {
		return Result{}, apierr.New(apierr.AlreadyInLobby, "device already has a lobby")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if pos, ok := q.positionLocked(deviceID); ok {
		// Idempotent: already queued, return the existing position.
		return Result{InQueue: true, Position: pos, ETASeconds: q.etaSeconds}, nil
	}

	if len(q.waiters) > 0 {
		head := q.waiters[0]
		q.waiters = q.waiters[1:]

		snap, err := q.reg.Pair(ctx, head.deviceID, deviceID)
		if err != nil {
			// The head waiter (most likely) picked up a lobby through
			// another path between being queued and being popped; drop
			// it and let the caller retry rather than wedging the
			// queue on a waiter that can never be paired.
			q.logEvent(ctx, eventsink.MatchmakingQueueLeave, head.deviceID, map[string]interface{}{"reason": "stale_on_pair"})
			return Result{}, err
		}

		// Pair already logged matchmaking_match_found.
		return Result{InQueue: false, Lobby: snap}, nil
	}

	q.waiters = append(q.waiters, waiter{deviceID: deviceID, queuedAt: time.Now()})
	q.logEvent(ctx, eventsink.MatchmakingQueueJoin, deviceID, nil)
	return Result{InQueue: true, Position: 1, ETASeconds: q.etaSeconds}, nil
}

// LeaveQueue removes deviceID from the queue if present. Idempotent.
func (q *Queue) LeaveQueue(deviceID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w.deviceID == deviceID {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			q.logEvent(context.Background(), eventsink.MatchmakingQueueLeave, deviceID, nil)
			return
		}
	}
}

// QueueStatus reports whether deviceID is queued and at what position.
func (q *Queue) QueueStatus(deviceID string) Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos, ok := q.positionLocked(deviceID)
	if !ok {
		return Status{InQueue: false}
	}
	return Status{InQueue: true, Position: pos, ETASeconds: q.etaSeconds}
}

func (q *Queue) positionLocked(deviceID string) (int, bool) {
	for i, w := range q.waiters {
		if w.deviceID == deviceID {
			return i + 1, true
		}
	}
	return 0, false
}

func (q *Queue) logEvent(ctx context.Context, kind eventsink.Kind, deviceID string, fields map[string]interface{}) {
	if q.sink == nil {
		return
	}
	q.sink.Log(ctx, eventsink.New(kind, "", deviceID, fields, time.Now()))
}

// Result is the response shape for FindMatch.
type Result struct {
	InQueue    bool
	Position   int
	ETASeconds int
	Lobby      registry.Snapshot
}

// Status is the response shape for QueueStatus.
type Status struct {
	InQueue    bool
	Position   int
	ETASeconds int
}
