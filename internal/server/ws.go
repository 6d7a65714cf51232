package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/app"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventsHandler broadcasts prediction events to websocket clients.
type EventsHandler struct {
	log         *zap.Logger
	unsubscribe func()

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewEventsHandler subscribes to svc and fans its events out to clients.
func NewEventsHandler(svc Service, log *zap.Logger) *EventsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &EventsHandler{
		log:     log,
		clients: make(map[*websocket.Conn]bool),
	}
	h.unsubscribe = svc.Subscribe(h.broadcast)
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast runs on the predicting goroutine, so writes to a connection
// never overlap.
func (h *EventsHandler) broadcast(e app.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.log.Error("failed to encode event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("event write failed", zap.Error(err))
		}
	}
}

// Close unsubscribes from the service and disconnects every client.
func (h *EventsHandler) Close() {
	h.unsubscribe()

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
