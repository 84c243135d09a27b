// Package connectionhub tracks the live WebSocket per (lobby, device)
// and is the only path by which a socket disconnect influences lobby
// state: when a socket closes, cleanly or not, the hub invokes the
// registry's leave with the disconnect flag and then unsubscribes.
package connectionhub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/duskforge/lobby/internal/broadcaster"
)

// Custom WebSocket close codes. These give clients a more specific
// reason for closure than the standard policy-violation code.
const (
	CloseBadSubprotocol   = 3000 // client connected with an unsupported subprotocol
	CloseMissingDeviceID  = 3001 // no device_id query parameter
	CloseUnknownLobbyCode = 3003 // lobby code in the WS URL does not resolve
	CloseNotAMember       = 3004 // device is not seated in the target lobby
)

// Subprotocol is the WebSocket subprotocol lobby clients must speak.
const Subprotocol = "lobby"

// registryAPI is the subset of *registry.Registry the hub needs.
type registryAPI interface {
	IDForCode(code string) (string, bool)
	IsMember(lobbyID, deviceID string) bool
	Leave(ctx context.Context, deviceID string, disconnect bool) error
	Subscribe(lobbyID, subscriberID string) <-chan broadcaster.Message
	Unsubscribe(lobbyID, subscriberID string)
	PublishError(lobbyID, subscriberID, message string)
}

// connGauge is the optional live-connection gauge, satisfied by
// prometheus.Gauge.
type connGauge interface {
	Inc()
	Dec()
}

type connKey struct {
	lobbyID  string
	deviceID string
}

type connEntry struct {
	cancel context.CancelFunc
}

// Hub owns all live lobby sockets. A second socket for the same
// (lobby, device) replaces the first, which is closed.
type Hub struct {
	mu    sync.Mutex
	conns map[connKey]*connEntry

	reg    registryAPI
	logger *logrus.Logger
	gauge  connGauge
}

// New constructs a Hub. gauge may be nil.
func New(reg registryAPI, logger *logrus.Logger, gauge connGauge) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		conns:  make(map[connKey]*connEntry),
		reg:    reg,
		logger: logger,
		gauge:  gauge,
	}
}

// Serve upgrades the request to a WebSocket for the lobby identified
// by code, verifies the device is a current member, and pumps broadcast
// events to the socket until either side closes. It blocks for the
// lifetime of the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, code, deviceID string) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.WithError(err).Warn("connectionhub: websocket accept failed")
		return
	}
	if c.Subprotocol() != Subprotocol {
		c.Close(CloseBadSubprotocol, "client must speak the lobby subprotocol")
		return
	}
	if deviceID == "" {
		c.Close(CloseMissingDeviceID, "missing device_id")
		return
	}

	lobbyID, ok := h.reg.IDForCode(code)
	if !ok {
		c.Close(CloseUnknownLobbyCode, "no lobby with that code")
		return
	}
	if !h.reg.IsMember(lobbyID, deviceID) {
		c.Close(CloseNotAMember, "device is not a member of this lobby")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	key := connKey{lobbyID: lobbyID, deviceID: deviceID}
	entry := &connEntry{cancel: cancel}
	h.mu.Lock()
	if prev, exists := h.conns[key]; exists {
		prev.cancel()
	}
	h.conns[key] = entry
	h.mu.Unlock()

	// Subscribing replaces any previous channel for this device without
	// closing it; a superseded socket's write pump exits because its
	// context was cancelled above.
	events := h.reg.Subscribe(lobbyID, deviceID)
	if h.gauge != nil {
		h.gauge.Inc()
	}
	h.logger.WithFields(logrus.Fields{
		"lobby_id":  lobbyID,
		"device_id": deviceID,
		"remote":    r.RemoteAddr,
	}).Info("websocket connected")

	go h.writePump(ctx, c, events)
	readErr := h.readPump(ctx, c, lobbyID, deviceID)

	h.mu.Lock()
	// A replacement socket may have already taken the key; if so, the
	// device is still connected and this teardown must not touch its
	// membership or subscription.
	wasCurrent := h.conns[key] == entry
	if wasCurrent {
		delete(h.conns, key)
	}
	h.mu.Unlock()

	if wasCurrent {
		// The socket is gone: treat it as a leave, then drop the
		// subscription. Leave is a no-op if the lobby already deleted
		// itself (game start or empty-drain).
		if err := h.reg.Leave(context.Background(), deviceID, true); err != nil {
			h.logger.WithError(err).Warn("connectionhub: leave on disconnect failed")
		}
		h.reg.Unsubscribe(lobbyID, deviceID)
	}
	if h.gauge != nil {
		h.gauge.Dec()
	}
	h.logger.WithFields(logrus.Fields{
		"lobby_id":  lobbyID,
		"device_id": deviceID,
		"error":     readErr,
	}).Info("websocket disconnected")

	c.Close(websocket.StatusNormalClosure, "closing")
}

// readPump reads client frames until the socket errors or the context
// is cancelled. The server is send-only in the normal path, but it
// must still read to observe disconnects; any frame a client does send
// is answered with an individually-addressed error event. A rate
// limiter bounds how fast a misbehaving client can make it spin.
func (h *Hub) readPump(ctx context.Context, c *websocket.Conn, lobbyID, deviceID string) error {
	l := rate.NewLimiter(rate.Every(100*time.Millisecond), 10)
	for {
		if err := l.Wait(ctx); err != nil {
			return err
		}
		if _, _, err := c.Read(ctx); err != nil {
			return err
		}
		h.reg.PublishError(lobbyID, deviceID, "lobby channel is read-only")
	}
}

// writePump forwards broadcast events to the socket until the
// subscription channel closes or the context is cancelled.
func (h *Hub) writePump(ctx context.Context, c *websocket.Conn, events <-chan broadcaster.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				// Topic closed: the lobby is gone and the final
				// lobby_deleted event has been delivered.
				c.Close(websocket.StatusNormalClosure, "lobby closed")
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.WithError(err).Warn("connectionhub: failed to marshal event")
				continue
			}
			if err := c.Write(ctx, websocket.MessageText, data); err != nil {
				h.logger.WithError(err).Debug("connectionhub: write failed")
				return
			}
		}
	}
}

// ConnectionCount reports the number of tracked sockets.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
