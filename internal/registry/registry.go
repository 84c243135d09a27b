package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/duskforge/lobby/internal/apierr"
	"github.com/duskforge/lobby/internal/broadcaster"
	"github.com/duskforge/lobby/internal/countdown"
	"github.com/duskforge/lobby/internal/eventsink"
	"github.com/duskforge/lobby/internal/persistence"
	"github.com/duskforge/lobby/internal/playerdirectory"
)

// Config holds the tunables the registry needs from the environment:
// the fixed seat count, the countdown duration, and the
// post-game grace period before a finished lobby is torn down.
type Config struct {
	MaxPlayers           int
	CountdownSeconds     int
	PostGameGraceSeconds int
}

// Registry is the LobbyRegistry: the authoritative in-memory state
// machine for every lobby's lifecycle. mu is the registry index lock
// guarding the code/device indices; it is always
// acquired before any per-lobby lock to prevent lock-order cycles.
type Registry struct {
	mu          sync.Mutex
	lobbies     map[string]*Lobby
	codeIndex   map[string]string // code -> lobby id, non-terminal lobbies only
	deviceIndex map[string]string // device id -> lobby id

	mint        codemintMinter
	broadcaster *broadcaster.Broadcaster
	sink        eventsink.Sink
	dir         playerdirectory.Directory
	persist     persistence.Store
	logger      *logrus.Logger
	cfg         Config

	leaveQueueHook func(deviceID string)
}

// codemintMinter is the subset of *codemint.Mint the registry needs,
// narrowed so tests can substitute a deterministic minter.
type codemintMinter interface {
	Next(isTaken func(code string) bool) (string, error)
}

// New constructs a Registry. logger, sink, persist may be nil; dir and
// broadcaster and mint must not be.
func New(cfg Config, mint codemintMinter, b *broadcaster.Broadcaster, sink eventsink.Sink, dir playerdirectory.Directory, persist persistence.Store, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		lobbies:     make(map[string]*Lobby),
		codeIndex:   make(map[string]string),
		deviceIndex: make(map[string]string),
		mint:        mint,
		broadcaster: b,
		sink:        sink,
		dir:         dir,
		persist:     persist,
		logger:      logger,
		cfg:         cfg,
	}
}

// SetLeaveQueueHook wires the matchmaking queue's LeaveQueue into the
// registry so create/join can evict a device from the queue, without
// either package importing the other. Call once during startup
// wiring, before serving traffic.
func (r *Registry) SetLeaveQueueHook(fn func(deviceID string)) {
	r.leaveQueueHook = fn
}

// Create mints a code and opens a new waiting lobby with deviceID as
// its first, unready member. Fails if the device already has a lobby.
func (r *Registry) Create(ctx context.Context, deviceID string) (Snapshot, error) {
	userName, err := r.resolveName(ctx, deviceID)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	if _, exists := r.deviceIndex[deviceID]; exists {
		r.mu.Unlock()
		return Snapshot{}, apierr.New(apierr.AlreadyInLobby, "device already has a lobby")
	}

	code, err := r.mintCodeLocked()
	if err != nil {
		r.mu.Unlock()
		return Snapshot{}, apierr.Wrap(apierr.Internal, "failed to mint lobby code", err)
	}
	now := time.Now()
	lobby := &Lobby{
		ID:         uuid.NewString(),
		Code:       code,
		Status:     StatusWaiting,
		MaxPlayers: r.cfg.MaxPlayers,
		Members:    []*Member{{DeviceID: deviceID, UserName: userName, IsReady: false, JoinedAt: now}},
		CreatedAt:  now,
		UpdatedAt:  now,
		Timer:      &countdown.Timer{},
	}
	r.lobbies[lobby.ID] = lobby
	r.codeIndex[code] = lobby.ID
	r.deviceIndex[deviceID] = lobby.ID

	lobby.mu.Lock()
	snap := lobby.snapshotLocked()
	r.publishLocked(lobby, broadcaster.EventPlayerJoined, snap)
	lobby.mu.Unlock()
	r.mu.Unlock()

	r.logEvent(ctx, eventsink.LobbyCreated, lobby.ID, deviceID, map[string]interface{}{"code": code})
	r.mirror(ctx, snap)
	r.leaveQueue(deviceID)
	return snap, nil
}

// Join seats deviceID in the waiting lobby identified by code.
func (r *Registry) Join(ctx context.Context, deviceID, code string) (Snapshot, error) {
	userName, err := r.resolveName(ctx, deviceID)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	if _, exists := r.deviceIndex[deviceID]; exists {
		r.mu.Unlock()
		return Snapshot{}, apierr.New(apierr.AlreadyInLobby, "device already has a lobby")
	}
	lobbyID, ok := r.codeIndex[code]
	if !ok {
		r.mu.Unlock()
		return Snapshot{}, apierr.New(apierr.NotFound, "no lobby with that code")
	}
	lobby := r.lobbies[lobbyID]
	lobby.mu.Lock()

	var joinErr error
	var snap Snapshot
	switch {
	case lobby.Status != StatusWaiting:
		joinErr = apierr.New(apierr.NotJoinable, "lobby is not accepting joins")
	case len(lobby.Members) >= lobby.MaxPlayers:
		joinErr = apierr.New(apierr.Full, "lobby is full")
	default:
		now := time.Now()
		lobby.Members = append(lobby.Members, &Member{DeviceID: deviceID, UserName: userName, IsReady: false, JoinedAt: now})
		// Any membership change unconditionally resets readies.
		lobby.resetReadyLocked()
		lobby.Status = StatusWaiting
		lobby.UpdatedAt = now
		r.deviceIndex[deviceID] = lobbyID
		snap = lobby.snapshotLocked()
		r.publishLocked(lobby, broadcaster.EventPlayerJoined, snap)
	}
	lobby.mu.Unlock()
	r.mu.Unlock()

	if joinErr != nil {
		return Snapshot{}, joinErr
	}

	r.logEvent(ctx, eventsink.LobbyJoined, lobby.ID, deviceID, map[string]interface{}{"code": code})
	r.mirror(ctx, snap)
	r.leaveQueue(deviceID)
	return snap, nil
}

// Leave removes deviceID from its lobby, if any. disconnect selects
// which event kind is logged, distinguishing a ConnectionHub-driven
// departure from an explicit HTTP leave.
func (r *Registry) Leave(ctx context.Context, deviceID string, disconnect bool) error {
	r.mu.Lock()
	lobbyID, ok := r.deviceIndex[deviceID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	lobby := r.lobbies[lobbyID]
	lobby.mu.Lock()

	// A started lobby accepts no further mutations: it is already
	// scheduled for deletion, and stripping a member here would push a
	// status:"waiting" snapshot to a client that just saw game_started.
	if lobby.Status == StatusGameStarted {
		lobby.mu.Unlock()
		r.mu.Unlock()
		return nil
	}

	idx := lobby.memberIndexLocked(deviceID)
	if idx == -1 {
		lobby.mu.Unlock()
		delete(r.deviceIndex, deviceID)
		r.mu.Unlock()
		return nil
	}

	wasCountingDown := lobby.Timer.Active()
	if wasCountingDown {
		lobby.Timer.Cancel()
	}

	lobby.Members = append(lobby.Members[:idx], lobby.Members[idx+1:]...)
	lobby.resetReadyLocked()
	lobby.CountdownStartTime = nil
	lobby.UpdatedAt = time.Now()
	lobby.Status = StatusWaiting
	delete(r.deviceIndex, deviceID)

	empty := len(lobby.Members) == 0
	var snap Snapshot
	if empty {
		snap = lobby.snapshotLocked()
		lobby.deleted = true
		delete(r.lobbies, lobby.ID)
		delete(r.codeIndex, lobby.Code)
		r.publishLocked(lobby, broadcaster.EventLobbyDeleted, LobbyDeletedData{Reason: "empty", Lobby: snap})
	} else {
		snap = lobby.snapshotLocked()
		if wasCountingDown {
			r.publishLocked(lobby, broadcaster.EventCountdownAborted, snap)
		}
		r.publishLocked(lobby, broadcaster.EventPlayerLeft, snap)
	}
	lobby.mu.Unlock()
	r.mu.Unlock()

	if empty {
		r.broadcaster.CloseTopic(lobby.ID)
	}

	kind := eventsink.LobbyLeft
	if disconnect {
		kind = eventsink.LobbyLeftOnDisconnect
	}
	r.logEvent(ctx, kind, lobby.ID, deviceID, nil)
	if wasCountingDown {
		r.logEvent(ctx, eventsink.CountdownAborted, lobby.ID, deviceID, nil)
	}
	if empty {
		r.logEvent(ctx, eventsink.LobbyDeleted, lobby.ID, "", map[string]interface{}{"reason": "empty"})
		r.unmirror(ctx, lobby.ID)
	} else {
		r.mirror(ctx, snap)
	}
	return nil
}

// SetReady updates one member's ready flag and recomputes the lobby
// status. An unready call is accepted during countdown and cancels
// the timer; only game_started rejects the mutation.
func (r *Registry) SetReady(ctx context.Context, deviceID string, isReady bool) (Snapshot, error) {
	r.mu.Lock()
	lobbyID, ok := r.deviceIndex[deviceID]
	if !ok {
		r.mu.Unlock()
		return Snapshot{}, apierr.New(apierr.NotInLobby, "device is not in a lobby")
	}
	lobby := r.lobbies[lobbyID]
	lobby.mu.Lock()
	r.mu.Unlock()

	if lobby.Status == StatusGameStarted {
		lobby.mu.Unlock()
		return Snapshot{}, apierr.New(apierr.InvalidState, "lobby has already started its game")
	}

	idx := lobby.memberIndexLocked(deviceID)
	if idx == -1 {
		lobby.mu.Unlock()
		return Snapshot{}, apierr.New(apierr.NotInLobby, "device is not a member of this lobby")
	}
	member := lobby.Members[idx]

	// Idempotent toggle: a repeated set_ready with the same value is a
	// deterministic no-op, eliding the duplicate ready_status_changed
	// event rather than re-emitting it.
	if member.IsReady == isReady {
		snap := lobby.snapshotLocked()
		lobby.mu.Unlock()
		return snap, nil
	}

	member.IsReady = isReady
	lobby.UpdatedAt = time.Now()

	var startedCountdown, abortedCountdown bool
	switch {
	case !isReady:
		if lobby.Timer.Active() {
			lobby.Timer.Cancel()
			// Dropping out of countdown clears every seat's ready
			// flag, the same as a membership change would.
			lobby.resetReadyLocked()
			abortedCountdown = true
		}
		lobby.Status = StatusWaiting
		lobby.CountdownStartTime = nil
	case lobby.allReadyLocked():
		// ready_check is ephemeral: collapsed into the timer-start step
		// rather than held as an observable intermediate status.
		now := time.Now()
		lobby.CountdownStartTime = &now
		lobby.Status = StatusCountdown
		lobby.Timer.Start(r.cfg.CountdownSeconds, r.onTick(lobby.ID), r.onComplete(lobby.ID))
		startedCountdown = true
	default:
		lobby.Status = StatusWaiting
	}

	finalSnap := lobby.snapshotLocked()
	r.publishLocked(lobby, broadcaster.EventReadyStatusChanged, finalSnap)
	if abortedCountdown {
		r.publishLocked(lobby, broadcaster.EventCountdownAborted, finalSnap)
	}
	if startedCountdown {
		r.publishLocked(lobby, broadcaster.EventCountdownStarted, finalSnap)
	}
	lobby.mu.Unlock()

	r.logEvent(ctx, eventsink.ReadyToggle, lobby.ID, deviceID, map[string]interface{}{"is_ready": isReady})
	if startedCountdown {
		r.logEvent(ctx, eventsink.CountdownStarted, lobby.ID, "", nil)
	}
	if abortedCountdown {
		r.logEvent(ctx, eventsink.CountdownAborted, lobby.ID, deviceID, nil)
	}
	r.mirror(ctx, finalSnap)
	return finalSnap, nil
}

// Status returns the lobby snapshot for deviceID, if it has one.
func (r *Registry) Status(deviceID string) (Snapshot, bool) {
	r.mu.Lock()
	lobbyID, ok := r.deviceIndex[deviceID]
	if !ok {
		r.mu.Unlock()
		return Snapshot{}, false
	}
	lobby := r.lobbies[lobbyID]
	r.mu.Unlock()
	return lobby.Snapshot(), true
}

// LookupByCode returns the snapshot for the lobby with the given
// invite code, without going through a device. The WebSocket path
// resolves codes with IDForCode instead.
func (r *Registry) LookupByCode(code string) (Snapshot, bool) {
	r.mu.Lock()
	lobbyID, ok := r.codeIndex[code]
	if !ok {
		r.mu.Unlock()
		return Snapshot{}, false
	}
	lobby := r.lobbies[lobbyID]
	r.mu.Unlock()
	return lobby.Snapshot(), true
}

// IDForCode resolves an invite code to an internal lobby id, used to
// key the broadcaster's topics consistently regardless of whether a
// caller has a code or an id in hand.
func (r *Registry) IDForCode(code string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.codeIndex[code]
	return id, ok
}

// IsMember reports whether deviceID currently belongs to the lobby
// identified by lobbyID, used by the ConnectionHub to verify
// membership on socket open.
func (r *Registry) IsMember(lobbyID, deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deviceIndex[deviceID] == lobbyID
}

// HasLobby reports whether deviceID currently belongs to any lobby,
// used by the matchmaking queue to enforce the "never in both a queue
// and a lobby" invariant.
func (r *Registry) HasLobby(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.deviceIndex[deviceID]
	return ok
}

// Pair opens a new lobby seating two matched waiters at once. Called
// by the matchmaking queue while it still holds its own lock, under
// the fixed queue-then-registry lock order.
func (r *Registry) Pair(ctx context.Context, a, b string) (Snapshot, error) {
	nameA, err := r.resolveName(ctx, a)
	if err != nil {
		return Snapshot{}, err
	}
	nameB, err := r.resolveName(ctx, b)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	if _, exists := r.deviceIndex[a]; exists {
		r.mu.Unlock()
		return Snapshot{}, apierr.New(apierr.AlreadyInLobby, "device already has a lobby")
	}
	if _, exists := r.deviceIndex[b]; exists {
		r.mu.Unlock()
		return Snapshot{}, apierr.New(apierr.AlreadyInLobby, "device already has a lobby")
	}
	code, err := r.mintCodeLocked()
	if err != nil {
		r.mu.Unlock()
		return Snapshot{}, apierr.Wrap(apierr.Internal, "failed to mint lobby code", err)
	}

	now := time.Now()
	lobby := &Lobby{
		ID:         uuid.NewString(),
		Code:       code,
		Status:     StatusWaiting,
		MaxPlayers: r.cfg.MaxPlayers,
		Members: []*Member{
			{DeviceID: a, UserName: nameA, IsReady: false, JoinedAt: now},
			{DeviceID: b, UserName: nameB, IsReady: false, JoinedAt: now.Add(time.Nanosecond)},
		},
		CreatedAt: now,
		UpdatedAt: now,
		Timer:     &countdown.Timer{},
	}
	r.lobbies[lobby.ID] = lobby
	r.codeIndex[code] = lobby.ID
	r.deviceIndex[a] = lobby.ID
	r.deviceIndex[b] = lobby.ID

	lobby.mu.Lock()
	// Published twice, in insertion order, to mirror a join-then-join
	// flow even though both memberships are created in one step.
	afterA := Snapshot{
		ID: lobby.ID, Code: lobby.Code, Status: lobby.Status, MaxPlayers: lobby.MaxPlayers,
		CurrentPlayers: 1,
		Players:        []MemberView{{DeviceID: a, UserName: nameA, IsReady: false, JoinedAt: now}},
		CreatedAt:      now,
	}
	r.publishLocked(lobby, broadcaster.EventPlayerJoined, afterA)
	snap := lobby.snapshotLocked()
	r.publishLocked(lobby, broadcaster.EventPlayerJoined, snap)
	lobby.mu.Unlock()
	r.mu.Unlock()

	r.logEvent(ctx, eventsink.MatchmakingMatchFound, lobby.ID, "", map[string]interface{}{"device_a": a, "device_b": b, "code": code})
	r.mirror(ctx, snap)
	return snap, nil
}

// Subscribe and Unsubscribe proxy the broadcaster for the connection
// hub, so a socket handler only needs a *Registry.
func (r *Registry) Subscribe(lobbyID, subscriberID string) <-chan broadcaster.Message {
	return r.broadcaster.Subscribe(lobbyID, subscriberID)
}

func (r *Registry) Unsubscribe(lobbyID, subscriberID string) {
	r.broadcaster.Unsubscribe(lobbyID, subscriberID)
}

// PublishError sends a single individually-addressed error event to
// one subscriber.
func (r *Registry) PublishError(lobbyID, subscriberID, message string) {
	r.broadcaster.PublishTo(lobbyID, subscriberID, broadcaster.Message{
		Type:      broadcaster.EventError,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now(),
	})
}

func (r *Registry) publishLocked(lobby *Lobby, eventType broadcaster.EventType, data interface{}) {
	r.broadcaster.Publish(lobby.ID, broadcaster.Message{Type: eventType, Data: data, Timestamp: time.Now()})
}

func (r *Registry) mintCodeLocked() (string, error) {
	return r.mint.Next(func(code string) bool {
		_, taken := r.codeIndex[code]
		return taken
	})
}

func (r *Registry) resolveName(ctx context.Context, deviceID string) (string, error) {
	name, err := r.dir.ResolveName(ctx, deviceID)
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, "failed to resolve player name", err)
	}
	return name, nil
}

func (r *Registry) logEvent(ctx context.Context, kind eventsink.Kind, lobbyID, deviceID string, fields map[string]interface{}) {
	if r.sink == nil {
		return
	}
	r.sink.Log(ctx, eventsink.New(kind, lobbyID, deviceID, fields, time.Now()))
}

func (r *Registry) mirror(ctx context.Context, snap Snapshot) {
	if r.persist == nil {
		return
	}
	if err := r.persist.UpsertLobby(ctx, toRecord(snap)); err != nil {
		r.logger.WithError(err).Warn("registry: failed to mirror lobby to persistence")
	}
}

func (r *Registry) unmirror(ctx context.Context, lobbyID string) {
	if r.persist == nil {
		return
	}
	if err := r.persist.DeleteLobby(ctx, lobbyID); err != nil {
		r.logger.WithError(err).Warn("registry: failed to mirror lobby deletion")
	}
}

func (r *Registry) leaveQueue(deviceID string) {
	if r.leaveQueueHook != nil {
		r.leaveQueueHook(deviceID)
	}
}

func toRecord(s Snapshot) persistence.LobbyRecord {
	players := make([]persistence.PlayerRecord, len(s.Players))
	for i, p := range s.Players {
		players[i] = persistence.PlayerRecord{
			DeviceID: p.DeviceID,
			UserName: p.UserName,
			IsReady:  p.IsReady,
			JoinedAt: p.JoinedAt,
		}
	}
	return persistence.LobbyRecord{
		ID:                 s.ID,
		Code:               s.Code,
		Status:             string(s.Status),
		MaxPlayers:         s.MaxPlayers,
		Players:            players,
		CountdownStartTime: s.CountdownStartTime,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          time.Now(),
	}
}

// onTick returns the per-tick callback bound to one lobby id, checked
// against the lobby's current generation so a stale timer from a
// cancelled-then-restarted countdown can never emit.
func (r *Registry) onTick(lobbyID string) countdown.TickFunc {
	return func(gen uint64, secondsRemaining int) {
		r.mu.Lock()
		lobby, ok := r.lobbies[lobbyID]
		r.mu.Unlock()
		if !ok {
			return
		}
		lobby.mu.Lock()
		if lobby.Status != StatusCountdown || lobby.Timer.Generation() != gen {
			lobby.mu.Unlock()
			return
		}
		snap := lobby.snapshotLocked()
		r.publishLocked(lobby, broadcaster.EventCountdownTick, TickData{SecondsRemaining: secondsRemaining, Lobby: snap})
		lobby.mu.Unlock()
	}
}

// onComplete returns the completion callback bound to one lobby id. It
// transitions the lobby to game_started, then schedules the
// post-game-grace deletion.
func (r *Registry) onComplete(lobbyID string) countdown.CompleteFunc {
	return func(gen uint64) {
		r.mu.Lock()
		lobby, ok := r.lobbies[lobbyID]
		if !ok {
			r.mu.Unlock()
			return
		}
		lobby.mu.Lock()
		if lobby.Status != StatusCountdown || lobby.Timer.Generation() != gen {
			lobby.mu.Unlock()
			r.mu.Unlock()
			return
		}
		lobby.Timer.MarkComplete()
		lobby.Status = StatusGameStarted
		lobby.UpdatedAt = time.Now()
		snap := lobby.snapshotLocked()
		r.publishLocked(lobby, broadcaster.EventGameStarted, GameStartedData{LobbyCode: lobby.Code, Lobby: snap})
		// Code uniqueness applies to joinable lobbies only; free it
		// immediately so a new lobby can reuse the code during the
		// grace window, even though the id stays live a little longer.
		delete(r.codeIndex, lobby.Code)
		lobby.mu.Unlock()
		r.mu.Unlock()

		bg := context.Background()
		r.logEvent(bg, eventsink.GameStarted, lobby.ID, "", map[string]interface{}{"lobby_code": lobby.Code})
		r.mirror(bg, snap)

		time.AfterFunc(time.Duration(r.cfg.PostGameGraceSeconds)*time.Second, func() {
			r.finalizeGameStartedDeletion(lobby)
		})
	}
}

func (r *Registry) finalizeGameStartedDeletion(lobby *Lobby) {
	r.mu.Lock()
	lobby.mu.Lock()
	if lobby.deleted {
		lobby.mu.Unlock()
		r.mu.Unlock()
		return
	}
	lobby.deleted = true
	delete(r.lobbies, lobby.ID)
	if r.codeIndex[lobby.Code] == lobby.ID {
		delete(r.codeIndex, lobby.Code)
	}
	for _, m := range lobby.Members {
		if r.deviceIndex[m.DeviceID] == lobby.ID {
			delete(r.deviceIndex, m.DeviceID)
		}
	}
	snap := lobby.snapshotLocked()
	r.publishLocked(lobby, broadcaster.EventLobbyDeleted, LobbyDeletedData{Reason: "game_started", Lobby: snap})
	lobby.mu.Unlock()
	r.mu.Unlock()

	r.broadcaster.CloseTopic(lobby.ID)
	bg := context.Background()
	r.logEvent(bg, eventsink.LobbyDeleted, lobby.ID, "", map[string]interface{}{"reason": "game_started"})
	r.unmirror(bg, lobby.ID)
}
