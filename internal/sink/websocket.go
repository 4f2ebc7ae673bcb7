package sink

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/classytest/dispatcher/internal/model"
)

// maxWSConnections bounds the broadcaster's connection set, mirroring
// the teacher's MetricsHub connection cap (control_plane/ws_hub.go).
const maxWSConnections = 200

// WebSocketResultSink broadcasts completed results to every connected
// observer. Grounded in the teacher's MetricsHub single-broadcaster
// pattern, adapted from "ticker pushes metrics" to "push on result
// arrival" since a grading result is itself the event. This is a
// local observation channel, not a public HTTP API surface (spec §1
// explicitly keeps auth/HTTP endpoints out of scope).
type WebSocketResultSink struct {
	mu         sync.RWMutex
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

// NewWebSocketResultSink builds an empty broadcaster.
func NewWebSocketResultSink() *WebSocketResultSink {
	return &WebSocketResultSink{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run services registration/unregistration until ctx is done.
func (h *WebSocketResultSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxWSConnections {
				h.mu.Unlock()
				conn.Close()
				log.Printf("dispatcher: websocket result sink rejected connection: max %d reached", maxWSConnections)
				continue
			}
			h.clients[conn] = true
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a connection to the broadcast set.
func (h *WebSocketResultSink) Register(conn *websocket.Conn) {
	h.register <- conn
}

// Unregister removes a connection from the broadcast set.
func (h *WebSocketResultSink) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// SubmitResult implements ResultSink by fanning the result out to every
// connected observer. A write failure on one connection only drops
// that connection, never the result itself.
func (h *WebSocketResultSink) SubmitResult(ctx context.Context, result model.AutoTestResult) (*Rejection, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("dispatcher: websocket result sink write failed: %v", err)
			// Unregister is serviced by Run, which needs the write lock
			// held here as a read lock, so hand it off.
			go h.Unregister(conn)
		}
	}
	return nil, nil
}
