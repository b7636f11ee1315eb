// Package events publishes connection status changes.
package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"roadweaver/internal/model"
)

// Event reports that a connection of a world entered a new status.
type Event struct {
	World  string         `json:"world"`
	From   model.BlockPos `json:"from"`
	To     model.BlockPos `json:"to"`
	Status model.Status   `json:"status"`
	At     time.Time      `json:"at"`
}

// Sink receives events. Publish must not block for long; it is called from
// job workers.
type Sink interface {
	Publish(Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

// Hub fans events out to websocket clients. Events are queued and written by
// Run; when the queue is full new events are dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	queue   chan Event
	logger  *log.Logger
}

// NewHub creates a hub with room for buffer queued events.
func NewHub(buffer int, logger *log.Logger) *Hub {
	if buffer < 1 {
		buffer = 256
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		queue:   make(chan Event, buffer),
		logger:  logger,
	}
}

func (h *Hub) Publish(e Event) {
	select {
	case h.queue <- e:
	default:
		h.logger.Printf("⚠️  event queue full, dropping %s %s", e.World, e.Status)
	}
}

// Run broadcasts queued events until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e := <-h.queue:
			msg, err := json.Marshal(e)
			if err != nil {
				h.logger.Printf("❌ encoding event: %v", err)
				continue
			}
			h.broadcast(msg)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

func (h *Hub) broadcast(message []byte) {
	h.mu.Lock()
	for conn := range h.clients {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			delete(h.clients, conn)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Client messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Printf("❌ websocket accept: %v", err)
		return
	}
	h.add(conn)
	defer h.remove(conn)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}
