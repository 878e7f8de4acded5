package hub

import (
	"log/slog"
	"sync"

	"github.com/jack-ferreri12/BasicInterviewer-v1/internal/log"
)

// Hub maintains the set of live viewers and broadcasts updates to them.
// A viewer joining mid-interview first receives a replay of everything
// broadcast so far, so its transcript view is complete.
type Hub struct {
	logger *slog.Logger

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// mu guards clients for ClientCount and history for replay.
	mu      sync.RWMutex
	history [][]byte
}

// New creates a Hub. Run must be started in its own goroutine before any
// viewer connects.
func New() *Hub {
	return &Hub{
		logger:     log.With("component", "hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives registration and fan-out until the hub is abandoned.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			replay := make([][]byte, len(h.history))
			copy(replay, h.history)
			h.mu.Unlock()

			for _, frame := range replay {
				select {
				case client.send <- frame:
				default:
				}
			}
			h.logger.Info("viewer connected", "viewers", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("viewer disconnected", "viewers", count)

		case frame := <-h.broadcast:
			h.mu.Lock()
			h.history = append(h.history, frame)
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					// Viewer can't keep up; drop it.
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow viewer")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues one update for every connected viewer. Never blocks;
// a full queue drops the update.
func (h *Hub) Broadcast(u Update) {
	select {
	case h.broadcast <- u.encode():
	default:
		h.logger.Warn("broadcast queue full, dropping update", "type", u.Type)
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
