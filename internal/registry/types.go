// Package registry implements the authoritative in-memory lobby state
// machine: membership, ready flags, countdown transitions, and the
// code and device indices that locate a lobby from the outside.
package registry

import (
	"sync"
	"time"

	"github.com/duskforge/lobby/internal/countdown"
)

// Status is a lobby's position in its lifecycle state machine.
type Status string

const (
	StatusWaiting Status = "waiting"
	// StatusReadyCheck is the transient all-ready state. The registry
	// collapses it into the timer-start step, so it is never stored or
	// observed externally; the constant documents the wire enum.
	StatusReadyCheck  Status = "ready_check"
	StatusCountdown   Status = "countdown"
	StatusGameStarted Status = "game_started"
)

// Member is one seated player. JoinedAt is insertion order, which is
// also the tie-break for any per-lobby ordering.
type Member struct {
	DeviceID string
	UserName string
	IsReady  bool
	JoinedAt time.Time
}

// Lobby is the in-memory state for a single match attempt. All
// mutation and reads of a Lobby's mutable fields must hold mu.
type Lobby struct {
	mu sync.Mutex

	ID                 string
	Code               string
	Status             Status
	MaxPlayers         int
	Members            []*Member
	CountdownStartTime *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Timer is owned by the lobby and torn down with it.
	Timer *countdown.Timer

	// deleted marks a lobby that has left the registry's indices but
	// whose goroutines (a pending grace-period deletion, in particular)
	// may still hold a reference. Guards against double-delete.
	deleted bool
}

// MemberView is the wire shape of a Member in the lobby payload.
type MemberView struct {
	DeviceID string    `json:"device_id"`
	UserName string    `json:"user_name"`
	IsReady  bool      `json:"is_ready"`
	JoinedAt time.Time `json:"joined_at"`
}

// Snapshot is the immutable lobby wire shape, safe to read, encode,
// or hand to the broadcaster without holding any lock.
type Snapshot struct {
	ID                 string       `json:"id"`
	Code               string       `json:"code"`
	Status             Status       `json:"status"`
	MaxPlayers         int          `json:"max_players"`
	CurrentPlayers     int          `json:"current_players"`
	Players            []MemberView `json:"players"`
	CountdownStartTime *time.Time   `json:"countdown_start_time"`
	CreatedAt          time.Time    `json:"created_at"`
}

// snapshotLocked builds a Snapshot from the current state. Caller must
// hold l.mu.
func (l *Lobby) snapshotLocked() Snapshot {
	players := make([]MemberView, len(l.Members))
	for i, m := range l.Members {
		players[i] = MemberView{
			DeviceID: m.DeviceID,
			UserName: m.UserName,
			IsReady:  m.IsReady,
			JoinedAt: m.JoinedAt,
		}
	}
	return Snapshot{
		ID:                 l.ID,
		Code:               l.Code,
		Status:             l.Status,
		MaxPlayers:         l.MaxPlayers,
		CurrentPlayers:     len(l.Members),
		Players:            players,
		CountdownStartTime: l.CountdownStartTime,
		CreatedAt:          l.CreatedAt,
	}
}

// Snapshot returns a point-in-time copy of the lobby's public state.
func (l *Lobby) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Lobby) memberIndexLocked(deviceID string) int {
	for i, m := range l.Members {
		if m.DeviceID == deviceID {
			return i
		}
	}
	return -1
}

func (l *Lobby) allReadyLocked() bool {
	if len(l.Members) != l.MaxPlayers {
		return false
	}
	for _, m := range l.Members {
		if !m.IsReady {
			return false
		}
	}
	return true
}

func (l *Lobby) resetReadyLocked() {
	for _, m := range l.Members {
		m.IsReady = false
	}
}
