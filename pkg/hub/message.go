// Package hub fans websocket messages out to every connected dashboard
// client. Each dashboard stream has its own Hub.
package hub

import (
	"encoding/json"

	"github.com/gofiber/websocket/v2"
)

// Message is one broadcast payload. Binary payloads carry JPEG frames,
// text payloads carry JSON.
type Message struct {
	Binary bool
	Data   []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Binary: true, Data: data}
}

// Marshal encodes v as a JSON message.
func Marshal(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}

func (m Message) frameType() int {
	if m.Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
