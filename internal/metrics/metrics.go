// Package metrics holds the Prometheus instrumentation for the lobby
// coordinator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the coordinator exports.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LobbiesActive     prometheus.Gauge
	LobbiesCreated    prometheus.Counter
	GamesStarted      prometheus.Counter
	CountdownsAborted prometheus.Counter

	QueueSize    prometheus.Gauge
	MatchesFound prometheus.Counter

	WSConnections prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered on a
// private registry, so tests can construct as many as they like
// without default-registry duplicate panics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobby_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lobby_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		LobbiesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lobby_lobbies_active",
			Help: "Number of live lobbies",
		}),
		LobbiesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lobby_lobbies_created_total",
			Help: "Total number of lobbies created",
		}),
		GamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lobby_games_started_total",
			Help: "Total number of countdowns that reached game start",
		}),
		CountdownsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lobby_countdowns_aborted_total",
			Help: "Total number of countdowns cancelled before game start",
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lobby_matchmaking_queue_size",
			Help: "Number of players waiting in the matchmaking queue",
		}),
		MatchesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lobby_matchmaking_matches_total",
			Help: "Total number of matchmaking pairs formed",
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lobby_ws_connections",
			Help: "Number of open lobby WebSocket connections",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.LobbiesActive, m.LobbiesCreated, m.GamesStarted, m.CountdownsAborted,
		m.QueueSize, m.MatchesFound, m.WSConnections,
	)
	return m
}

// Handler returns the exposition endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware instruments each request with a count and a duration
// observation, labeled by method and path. The API surface is a small
// fixed set of paths, so cardinality stays bounded. chi's
// WrapResponseWriter keeps Hijacker intact for the WebSocket route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
