package sync

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// ProgressEvent is pushed to websocket subscribers as each entity phase
// starts and when the run completes.
type ProgressEvent struct {
	Entity string `json:"entity"`
	Status string `json:"status"`
}

// Hub fans progress events out to connected websocket clients.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	log   *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]struct{}),
		log:   log,
	}
}

// Broadcast sends the event to every connected client, dropping
// connections that fail to write.
func (h *Hub) Broadcast(event ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := conn.WriteJSON(event); err != nil {
			h.log.Debug("dropping dead websocket client", zap.Error(err))
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// Handle registers a client and blocks until the connection closes.
func (h *Hub) Handle(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Clients only listen; the read loop exists to detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
