package hub

import (
	"encoding/json"
	"sync"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name string

	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool
}

// New creates a hub. name is used for logging only.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop. Call in a goroutine.
func (h *Hub) Run() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("hub client connected", "hub", h.name, "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("hub client disconnected", "hub", h.name, "remaining", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client: evict rather than block everyone.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow hub client", "hub", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn("broadcast channel full, dropping message", "hub", h.name)
	}
}

// BroadcastJSON encodes and broadcasts a JSON message.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts binary data.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub loop has started.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
