package registry

// Data shapes published on a lobby's broadcast topic. Every event
// carries the lobby snapshot as it stood at publish time; the three
// event types with an extra field of their own (countdown_tick,
// game_started, lobby_deleted) nest the snapshot under "lobby"
// alongside that field.
type TickData struct {
	SecondsRemaining int      `json:"seconds_remaining"`
	Lobby            Snapshot `json:"lobby"`
}

type GameStartedData struct {
	LobbyCode string   `json:"lobby_code"`
	Lobby     Snapshot `json:"lobby"`
}

type LobbyDeletedData struct {
	Reason string   `json:"reason"`
	Lobby  Snapshot `json:"lobby"`
}
