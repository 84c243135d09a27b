package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/duskforge/lobby/internal/apierr"
	"github.com/duskforge/lobby/internal/registry"
)

type lobbyResponse struct {
	Success bool               `json:"success"`
	Lobby   *registry.Snapshot `json:"lobby,omitempty"`
	Message string             `json:"message,omitempty"`
}

type matchResponse struct {
	Success           bool               `json:"success"`
	InQueue           bool               `json:"in_queue"`
	Lobby             *registry.Snapshot `json:"lobby,omitempty"`
	QueuePosition     int                `json:"queue_position,omitempty"`
	EstimatedWaitTime int                `json:"estimated_wait_time,omitempty"`
	Message           string             `json:"message,omitempty"`
}

// CreateLobbyHandler handles POST /lobby/create.
func (s *Server) CreateLobbyHandler(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := s.authenticateDevice(w, r)
	if !ok {
		return
	}

	snap, err := s.Registry.Create(r.Context(), deviceID)
	if err != nil {
		apierr.WriteJSON(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lobbyResponse{Success: true, Lobby: &snap, Message: "lobby created"})
}

// JoinLobbyHandler handles POST /lobby/join.
func (s *Server) JoinLobbyHandler(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := s.authenticateDevice(w, r)
	if !ok {
		return
	}

	var body struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, s, &body) {
		return
	}
	code := strings.ToUpper(strings.TrimSpace(body.Code))
	if code == "" {
		apierr.WriteJSON(w, s.Logger, apierr.New(apierr.NotFound, "missing lobby code"))
		return
	}

	snap, err := s.Registry.Join(r.Context(), deviceID, code)
	if err != nil {
		apierr.WriteJSON(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lobbyResponse{Success: true, Lobby: &snap, Message: "joined lobby"})
}

// LeaveLobbyHandler handles POST /lobby/leave. Leaving while not in a
// lobby is a success: the caller's goal state already holds.
func (s *Server) LeaveLobbyHandler(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := s.authenticateDevice(w, r)
	if !ok {
		return
	}

	if err := s.Registry.Leave(r.Context(), deviceID, false); err != nil {
		apierr.WriteJSON(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lobbyResponse{Success: true, Message: "left lobby"})
}

// ReadyHandler handles POST /lobby/ready.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := s.authenticateDevice(w, r)
	if !ok {
		return
	}

	var body struct {
		IsReady bool `json:"is_ready"`
	}
	if !decodeBody(w, r, s, &body) {
		return
	}

	snap, err := s.Registry.SetReady(r.Context(), deviceID, body.IsReady)
	if err != nil {
		apierr.WriteJSON(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lobbyResponse{Success: true, Lobby: &snap})
}

// StatusHandler handles GET /lobby/status. A device with no lobby gets
// success with no lobby field rather than an error.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := s.authenticateDevice(w, r)
	if !ok {
		return
	}

	snap, found := s.Registry.Status(deviceID)
	if !found {
		writeJSON(w, http.StatusOK, lobbyResponse{Success: true})
		return
	}
	writeJSON(w, http.StatusOK, lobbyResponse{Success: true, Lobby: &snap})
}

// FindMatchHandler handles POST /lobby/find_match.
func (s *Server) FindMatchHandler(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := s.authenticateDevice(w, r)
	if !ok {
		return
	}

	result, err := s.Queue.FindMatch(r.Context(), deviceID)
	if err != nil {
		apierr.WriteJSON(w, s.Logger, err)
		return
	}

	if result.InQueue {
		writeJSON(w, http.StatusOK, matchResponse{
			Success:           true,
			InQueue:           true,
			QueuePosition:     result.Position,
			EstimatedWaitTime: result.ETASeconds,
			Message:           "waiting for an opponent",
		})
		return
	}
	writeJSON(w, http.StatusOK, matchResponse{
		Success: true,
		InQueue: false,
		Lobby:   &result.Lobby,
		Message: "match found",
	})
}

// LeaveQueueHandler handles POST /lobby/leave_queue.
func (s *Server) LeaveQueueHandler(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := s.authenticateDevice(w, r)
	if !ok {
		return
	}

	s.Queue.LeaveQueue(deviceID)
	writeJSON(w, http.StatusOK, lobbyResponse{Success: true, Message: "left queue"})
}

// QueueStatusHandler handles GET /lobby/queue_status.
func (s *Server) QueueStatusHandler(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := s.authenticateDevice(w, r)
	if !ok {
		return
	}

	status := s.Queue.QueueStatus(deviceID)
	resp := matchResponse{Success: true, InQueue: status.InQueue}
	if status.InQueue {
		resp.QueuePosition = status.Position
		resp.EstimatedWaitTime = status.ETASeconds
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody decodes a JSON body into dst, tolerating an empty body.
// On malformed JSON it writes an error response and reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, s *Server, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		apierr.WriteJSON(w, s.Logger, apierr.Wrap(apierr.BadRequest, "invalid request body", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
