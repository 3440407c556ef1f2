package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"faff-crm/internal/metrics"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 2 * time.Second

// Hub fans events out to all connected dashboard sessions over
// websockets. Slow or broken sessions are dropped; events are never
// buffered for absent clients.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, metricRegistry *metrics.Metrics) *Hub {
	return &Hub{
		logger:   logger.With("component", "realtime"),
		metrics:  metricRegistry,
		sessions: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the session registered until
// the client disconnects. Inbound frames are drained and discarded; the
// dashboard protocol is server-push only.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}

	h.register(conn)
	defer h.unregister(conn)

	h.logger.Debug("dashboard session connected", "sessions", h.SessionCount())

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast delivers one event to every connected session, best effort.
// A session whose write fails is closed and removed.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.sessions))
	for conn := range h.sessions {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if h.metrics != nil {
		h.metrics.RealtimeEvents.WithLabelValues(event.Name).Inc()
	}

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, conn, event)
		cancel()
		if err != nil {
			h.logger.Debug("dropping dashboard session", "error", err)
			h.unregister(conn)
			_ = conn.Close(websocket.StatusPolicyViolation, "write failed")
		}
	}
}

// SessionCount reports the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown closes every session.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.sessions))
	for conn := range h.sessions {
		conns = append(conns, conn)
	}
	h.sessions = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.sessions[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.sessions, conn)
	h.mu.Unlock()
}
