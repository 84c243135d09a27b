// Package handlers translates the external HTTP and WebSocket surface
// into registry and matchmaking calls. It performs no locking of its
// own: every state decision belongs to the components it dispatches to.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/duskforge/lobby/internal/apierr"
	"github.com/duskforge/lobby/internal/connectionhub"
	"github.com/duskforge/lobby/internal/matchmaking"
	"github.com/duskforge/lobby/internal/metrics"
	"github.com/duskforge/lobby/internal/middleware"
	"github.com/duskforge/lobby/internal/registry"
)

// deviceIDHeader carries the caller's identity on every endpoint.
const deviceIDHeader = "X-Device-ID"

// Server bundles the services the handlers dispatch to.
type Server struct {
	Registry *registry.Registry
	Queue    *matchmaking.Queue
	Hub      *connectionhub.Hub
	Logger   *logrus.Logger
}

// NewServer wires the handler layer. logger may be nil.
func NewServer(reg *registry.Registry, queue *matchmaking.Queue, hub *connectionhub.Hub, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{Registry: reg, Queue: queue, Hub: hub, Logger: logger}
}

// Router builds the full HTTP surface: the lobby API, the lobby
// WebSocket, health, metrics, and the browser test page. m may be nil
// to serve without instrumentation.
func (s *Server) Router(allowedOrigins []string, m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Heartbeat("/ping"))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", deviceIDHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if m != nil {
		r.Use(m.Middleware)
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/", s.IndexHandler)
	r.Get("/healthz", s.HealthHandler)

	r.Route("/lobby", func(r chi.Router) {
		r.Post("/create", s.CreateLobbyHandler)
		r.Post("/join", s.JoinLobbyHandler)
		r.Post("/leave", s.LeaveLobbyHandler)
		r.Post("/ready", s.ReadyHandler)
		r.Get("/status", s.StatusHandler)
		r.Post("/find_match", s.FindMatchHandler)
		r.Post("/leave_queue", s.LeaveQueueHandler)
		r.Get("/queue_status", s.QueueStatusHandler)
	})

	r.Get("/ws/lobby/{code}", s.LobbyWSHandler)

	return r
}

// HealthHandler is the liveness endpoint.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"lobby-coordinator"}`))
}

// authenticateDevice extracts the device id header. Missing ids write
// the Unauthenticated error response and report ok=false.
func (s *Server) authenticateDevice(w http.ResponseWriter, r *http.Request) (string, bool) {
	deviceID := r.Header.Get(deviceIDHeader)
	if deviceID == "" {
		apierr.WriteJSON(w, s.Logger, apierr.New(apierr.Unauthenticated, "missing "+deviceIDHeader+" header"))
		return "", false
	}
	return deviceID, true
}
