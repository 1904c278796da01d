// Package protocol defines the message types exchanged between the frame
// streaming client and the processing service over the message channel.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the type of a channel message
type MessageType string

const (
	// Client → Server messages
	TypeProcessFrame   MessageType = "process_frame"   // Frame as a bare data URL
	TypeVideoFrame     MessageType = "video_frame"     // Frame wrapped in {image}
	TypeStartDetection MessageType = "start_detection" // Detection session begins
	TypeStopDetection  MessageType = "stop_detection"  // Detection session ends

	// Server → Client messages
	TypeProcessedFrame MessageType = "processed_frame" // Annotated frame, optionally with detections
	TypeStatus         MessageType = "status"          // Informational status line
	TypeError          MessageType = "error"           // Processing error
	TypeAck            MessageType = "ack"             // Per-message acknowledgment

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the envelope for every channel message
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"` // Set on client messages, echoed in acks
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with a fresh ID and the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided value
func (m *Message) ParseData(v interface{}) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// VideoFrameData carries a frame in the detection protocol
type VideoFrameData struct {
	Image string `json:"image"` // data:image/jpeg;base64,...
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// Detection is one labelled result returned with a processed frame
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // 0 to 100
}

// ProcessedFrameData is the server's answer to a frame.
// On the wire it is either a bare data URL string or {image, detections}.
type ProcessedFrameData struct {
	Image      string      `json:"image"`
	Detections []Detection `json:"detections,omitempty"`

	// Bare is true when the payload arrived as a plain string.
	Bare bool `json:"-"`
}

// UnmarshalJSON accepts both payload shapes.
func (p *ProcessedFrameData) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = ProcessedFrameData{Image: s, Bare: true}
		return nil
	}

	type plain ProcessedFrameData
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ProcessedFrameData(v)
	return nil
}

// MarshalJSON writes the bare form when Bare is set.
func (p ProcessedFrameData) MarshalJSON() ([]byte, error) {
	if p.Bare {
		return json.Marshal(p.Image)
	}
	type plain ProcessedFrameData
	return json.Marshal(plain(p))
}

// StatusData is an informational status update
type StatusData struct {
	Status string `json:"status"`
}

// ErrorData is a processing error reported by the server.
// On the wire it is either {message} or a bare string.
type ErrorData struct {
	Message string `json:"message"`
}

// UnmarshalJSON accepts both payload shapes.
func (e *ErrorData) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Message)
	}
	type plain ErrorData
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = ErrorData(v)
	return nil
}

// AckData acknowledges a client message by ID
type AckData struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"` // Empty on success
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
