package report

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/logging"
)

const hubWriteTimeout = 200 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the websocket frame sent to dashboard clients.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Hub broadcasts payloads to connected websocket clients. Slow or broken
// clients are dropped.
type Hub struct {
	logger *zap.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

var (
	_ Sink         = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logging.OrNop(logger).Named("hub"),
		conns:  make(map[*websocket.Conn]bool),
	}
}

// Name returns "websocket".
func (h *Hub) Name() string {
	return "websocket"
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and keeps the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	h.add(conn)
	defer func() {
		h.remove(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Publish broadcasts payload wrapped in an Envelope.
func (h *Hub) Publish(_ context.Context, kind Kind, _ string, payload []byte) error {
	b, err := json.Marshal(Envelope{Kind: kind, Payload: payload})
	if err != nil {
		return err
	}
	h.broadcast(b)
	return nil
}

// Close disconnects all clients.
func (h *Hub) Close() error {
	for _, c := range h.snapshot() {
		c.Close()
		h.remove(c)
	}
	return nil
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	return clients
}

func (h *Hub) broadcast(b []byte) {
	for _, c := range h.snapshot() {
		_ = c.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = c.Close()
			h.remove(c)
		}
	}
}
