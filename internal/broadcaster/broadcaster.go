// Package broadcaster implements the per-lobby publish/subscribe
// fan-out: each subscriber gets its own buffered channel, writes are
// non-blocking, and a subscriber whose channel is full or closed is
// dropped without affecting delivery to any other subscriber.
package broadcaster

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType enumerates the message types the core publishes.
type EventType string

const (
	EventPlayerJoined       EventType = "player_joined"
	EventPlayerLeft         EventType = "player_left"
	EventReadyStatusChanged EventType = "ready_status_changed"
	EventCountdownStarted   EventType = "countdown_started"
	EventCountdownTick      EventType = "countdown_tick"
	EventCountdownAborted   EventType = "countdown_aborted"
	EventGameStarted        EventType = "game_started"
	EventLobbyDeleted       EventType = "lobby_deleted"
	EventError              EventType = "error"
)

// Message is the wire shape delivered to subscribers.
type Message struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// outboxSize bounds how many undelivered messages a slow subscriber may
// accumulate before being dropped. Two seats plus headroom for bursts
// of ticks is plenty for this fixed two-player design.
const outboxSize = 32

// Broadcaster is a singleton service shared by the registry (which
// publishes) and the connection hub (whose sockets subscribe).
type Broadcaster struct {
	mu     sync.Mutex
	topics map[string]map[string]chan Message // lobbyID -> subscriberID -> outbox
	logger *logrus.Logger
}

// New constructs an empty Broadcaster. A nil logger falls back to the
// logrus default singleton.
func New(logger *logrus.Logger) *Broadcaster {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Broadcaster{
		topics: make(map[string]map[string]chan Message),
		logger: logger,
	}
}

// Subscribe registers subscriberID under lobbyID and returns the
// channel it should read from. Re-subscribing the same ID replaces its
// channel (the caller owns draining the old one if it cares to).
func (b *Broadcaster) Subscribe(lobbyID, subscriberID string) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[lobbyID]
	if !ok {
		subs = make(map[string]chan Message)
		b.topics[lobbyID] = subs
	}
	ch := make(chan Message, outboxSize)
	subs[subscriberID] = ch
	return ch
}

// Unsubscribe removes subscriberID from lobbyID, closing its outbox.
// Safe to call more than once and for unknown IDs.
func (b *Broadcaster) Unsubscribe(lobbyID, subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(lobbyID, subscriberID)
}

func (b *Broadcaster) unsubscribeLocked(lobbyID, subscriberID string) {
	subs, ok := b.topics[lobbyID]
	if !ok {
		return
	}
	if ch, ok := subs[subscriberID]; ok {
		delete(subs, subscriberID)
		close(ch)
	}
	if len(subs) == 0 {
		delete(b.topics, lobbyID)
	}
}

// CloseTopic drops every subscriber for lobbyID, e.g. once a lobby is
// deleted and its final lobby_deleted message has been published.
func (b *Broadcaster) CloseTopic(lobbyID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[lobbyID]
	if !ok {
		return
	}
	for id, ch := range subs {
		delete(subs, id)
		close(ch)
	}
	delete(b.topics, lobbyID)
}

// Publish delivers msg to every current subscriber of lobbyID. Each
// delivery is an independent non-blocking send: a subscriber whose
// outbox is full is dropped and a warning is logged, but that never
// affects delivery to any other subscriber. Because each subscriber
// reads its own channel in FIFO order, and Publish itself is only ever
// called from within the lobby's critical section, successive Publish
// calls for one lobby are naturally delivered to a given subscriber in
// the order they were published. The sends happen under b.mu so no
// outbox can be closed out from under an in-flight send.
func (b *Broadcaster) Publish(lobbyID string, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var dropped []string
	for id, ch := range b.topics[lobbyID] {
		select {
		case ch <- msg:
		default:
			b.logger.WithFields(logrus.Fields{
				"lobby_id":     lobbyID,
				"subscriber":   id,
				"message_type": msg.Type,
			}).Warn("broadcaster: dropping slow subscriber")
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		b.unsubscribeLocked(lobbyID, id)
	}
}

// PublishTo delivers msg to a single subscriber only, used for the
// individually-addressed "error" event type.
func (b *Broadcaster) PublishTo(lobbyID, subscriberID string, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[lobbyID]
	if !ok {
		return
	}
	ch, ok := subs[subscriberID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		b.logger.WithFields(logrus.Fields{
			"lobby_id":   lobbyID,
			"subscriber": subscriberID,
		}).Warn("broadcaster: dropping slow subscriber on direct publish")
		b.unsubscribeLocked(lobbyID, subscriberID)
	}
}

// SubscriberCount reports how many live subscribers a lobby has.
// Primarily useful for tests and metrics.
func (b *Broadcaster) SubscriberCount(lobbyID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[lobbyID])
}
