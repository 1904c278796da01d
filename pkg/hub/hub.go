package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-framestream/pkg/metrics"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	// done is closed when the current Run returns
	done   chan struct{}
	doneMu sync.Mutex

	mu sync.RWMutex
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "stream", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Name returns the stream name
func (h *Hub) Name() string {
	return h.name
}

// Run processes registrations and broadcasts until ctx is cancelled.
// All clients are closed on return. Run may be called again afterwards,
// but not concurrently.
func (h *Hub) Run(ctx context.Context) error {
	h.doneMu.Lock()
	select {
	case <-h.done:
		h.done = make(chan struct{})
	default:
	}
	done := h.done
	h.doneMu.Unlock()

	defer close(done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			metrics.DashboardClients.WithLabelValues(h.name).Set(float64(count))
			h.logger.Debug("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.DashboardClients.WithLabelValues(h.name).Set(float64(count))
			h.logger.Debug("client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Too slow to keep up
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.DashboardClients.WithLabelValues(h.name).Set(0)
}

// Broadcast sends a message to all connected clients. It never blocks.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	msg, err := Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// BroadcastBinary broadcasts binary data such as JPEG frames
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Done is closed once the current Run has returned
func (h *Hub) Done() <-chan struct{} {
	h.doneMu.Lock()
	defer h.doneMu.Unlock()
	return h.done
}
