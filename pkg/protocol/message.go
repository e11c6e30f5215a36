package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Connection-level event names.
const (
	EventConnectionEstablished = "pulse:connection_established"
	EventError                 = "pulse:error"
	EventPing                  = "pulse:ping"
	EventPong                  = "pulse:pong"

	// InternalPrefix marks control events.
	InternalPrefix = "pulse:"
)

// Decoding errors.
var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrMissingEvent = errors.New("frame has no event name")
)

// Message is one decoded frame.
type Message struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
}

// NewMessage builds a message, marshaling data to JSON. A nil data leaves
// the data field out.
func NewMessage(event string, data any, channel string) (*Message, error) {
	m := &Message{Event: event, Channel: channel}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s data: %w", event, err)
		}
		m.Data = raw
	}
	return m, nil
}

// IsInternal reports whether the message is a connection-level control event.
func (m *Message) IsInternal() bool {
	return strings.HasPrefix(m.Event, InternalPrefix)
}

// Encode encodes the message as a JSON text frame.
func (m *Message) Encode() ([]byte, error) {
	if m.Event == "" {
		return nil, ErrMissingEvent
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode parses a JSON text frame.
func Decode(frame []byte) (*Message, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if m.Event == "" {
		return nil, ErrMissingEvent
	}
	return &m, nil
}

// UnmarshalData decodes the message data into v. Servers sometimes send the
// data object as a JSON-encoded string; both forms are accepted.
func (m *Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: no data", m.Event)
	}
	raw := []byte(m.Data)
	var s string
	if json.Unmarshal(raw, &s) == nil {
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: invalid data: %w", m.Event, err)
	}
	return nil
}

var (
	pingFrame = []byte(`{"event":"` + EventPing + `","data":{}}`)
	pongFrame = []byte(`{"event":"` + EventPong + `","data":{}}`)
)

// Ping returns an encoded pulse:ping frame.
func Ping() []byte {
	return append([]byte(nil), pingFrame...)
}

// Pong returns an encoded pulse:pong frame.
func Pong() []byte {
	return append([]byte(nil), pongFrame...)
}
