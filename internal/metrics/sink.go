package metrics

import (
	"context"

	"github.com/duskforge/lobby/internal/eventsink"
)

// Sink updates gauges and counters from the event stream, so the
// collectors track lobby and queue activity without the registry or
// queue knowing about Prometheus. Compose it with the real sink via
// eventsink.Multi.
type Sink struct {
	m *Metrics
}

// NewSink wraps m as an eventsink.Sink.
func NewSink(m *Metrics) *Sink {
	return &Sink{m: m}
}

func (s *Sink) Log(_ context.Context, rec eventsink.Record) {
	switch rec.Kind {
	case eventsink.LobbyCreated:
		s.m.LobbiesCreated.Inc()
		s.m.LobbiesActive.Inc()
	case eventsink.LobbyDeleted:
		s.m.LobbiesActive.Dec()
	case eventsink.GameStarted:
		s.m.GamesStarted.Inc()
	case eventsink.CountdownAborted:
		s.m.CountdownsAborted.Inc()
	case eventsink.MatchmakingQueueJoin:
		s.m.QueueSize.Inc()
	case eventsink.MatchmakingQueueLeave:
		s.m.QueueSize.Dec()
	case eventsink.MatchmakingMatchFound:
		s.m.MatchesFound.Inc()
		// A match consumes the queued head waiter without a
		// matchmaking_queue_leave event of its own.
		s.m.QueueSize.Dec()
		s.m.LobbiesCreated.Inc()
		s.m.LobbiesActive.Inc()
	}
}
