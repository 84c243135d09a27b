package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// LobbyWSHandler handles GET /ws/lobby/{code}?device_id={id}. Identity
// comes from the query string here rather than the device header,
// since browser WebSocket clients cannot set custom headers. All
// membership checks and the disconnect-to-leave routing live in the
// connection hub.
func (s *Server) LobbyWSHandler(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	deviceID := r.URL.Query().Get("device_id")
	s.Hub.Serve(w, r, code, deviceID)
}
