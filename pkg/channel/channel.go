// Package channel provides the persistent bidirectional message channel
// between the streaming client and the processing service.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-framestream/pkg/protocol"
)

// Sentinel errors.
var (
	// ErrNotConnected is returned by Send while the channel is down.
	ErrNotConnected = errors.New("channel: not connected")

	// ErrAckTimeout is returned when the server does not acknowledge in time.
	ErrAckTimeout = errors.New("channel: ack timeout")

	// ErrClosed is returned after the client stopped running.
	ErrClosed = errors.New("channel: closed")
)

// AckError is a negative acknowledgment from the server.
type AckError struct {
	ID      string
	Message string
}

// Error implements the error interface.
func (e *AckError) Error() string {
	return fmt.Sprintf("channel: message %s rejected: %s", e.ID, e.Message)
}

// EventKind identifies an Event.
type EventKind int

const (
	EventConnect    EventKind = iota + 1 // channel came up
	EventDisconnect                      // channel went down, Err holds the cause
	EventMessage                         // inbound message in Message
	EventError                           // transport or protocol error in Err
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind    EventKind
	Message *protocol.Message
	Err     error
	Time    time.Time
}

// Channel is the message channel as seen by the streaming loop.
type Channel interface {
	// Send writes msg. It fails fast with ErrNotConnected while down.
	Send(ctx context.Context, msg *protocol.Message) error

	// Subscribe returns a stream of events and a cancel func.
	// Events are delivered in order; subscribers must keep draining.
	Subscribe(buffer int) (<-chan Event, func())

	// Connected reports whether the channel is up.
	Connected() bool

	// Endpoint returns the URL the channel connects to.
	Endpoint() string
}
