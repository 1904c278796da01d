package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-framestream/pkg/protocol"
)

// Mock implements Channel for testing.
type Mock struct {
	// SendFunc is called when Send is invoked. Defaults to success.
	SendFunc func(ctx context.Context, msg *protocol.Message) error

	// URL returned by Endpoint.
	URL string

	connected atomic.Bool
	events    *fanout

	mu   sync.Mutex
	sent []*protocol.Message
}

// NewMock creates a connected mock channel.
func NewMock() *Mock {
	m := &Mock{
		URL:    "ws://localhost:8000/ws",
		events: newFanout(),
	}
	m.connected.Store(true)
	return m
}

// Send implements Channel.
func (m *Mock) Send(ctx context.Context, msg *protocol.Message) error {
	if !m.connected.Load() {
		return ErrNotConnected
	}
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Subscribe implements Channel.
func (m *Mock) Subscribe(buffer int) (<-chan Event, func()) {
	return m.events.subscribe(buffer)
}

// Connected implements Channel.
func (m *Mock) Connected() bool {
	return m.connected.Load()
}

// Endpoint implements Channel.
func (m *Mock) Endpoint() string {
	return m.URL
}

// Emit delivers ev to every subscriber, blocking until each accepts it.
func (m *Mock) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	m.events.publish(context.Background(), ev)
}

// Deliver emits an inbound message.
func (m *Mock) Deliver(msg *protocol.Message) {
	m.Emit(Event{Kind: EventMessage, Message: msg})
}

// SetConnected changes the connection state and emits the matching event.
func (m *Mock) SetConnected(up bool) {
	if m.connected.Swap(up) == up {
		return
	}
	if up {
		m.Emit(Event{Kind: EventConnect})
	} else {
		m.Emit(Event{Kind: EventDisconnect, Err: ErrNotConnected})
	}
}

// Sent returns every message sent so far.
func (m *Mock) Sent() []*protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*protocol.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentOfType returns sent messages of type t.
func (m *Mock) SentOfType(t protocol.MessageType) []*protocol.Message {
	var out []*protocol.Message
	for _, msg := range m.Sent() {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}
