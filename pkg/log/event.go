package log

import "time"

// Event is one diagnostic record emitted by the connection layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the emitting transport attempt (UUID) or,
	// for LayerConnection events, the connection manager.
	ConnectionID string `cbor:"2,keyasint"`

	// Transport is the transport label, e.g. "websocket" or "websockets"
	// for the encrypted variant.
	Transport string `cbor:"3,keyasint,omitempty"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Direction of a control or message frame.
	Direction Direction `cbor:"6,keyasint,omitempty"`

	// SocketID is the peer-assigned socket id (populated after the handshake).
	SocketID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of frame flow.
type Direction uint8

const (
	// DirectionIn indicates an inbound frame.
	DirectionIn Direction = 0
	// DirectionOut indicates an outbound frame.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is a single transport attempt.
	LayerTransport Layer = 0
	// LayerStrategy is transport selection.
	LayerStrategy Layer = 1
	// LayerConnection is the logical connection manager.
	LayerConnection Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerStrategy:
		return "STRATEGY"
	case LayerConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates an application frame.
	CategoryMessage Category = 0
	// CategoryControl indicates a heartbeat or close frame.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a lifecycle transition.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ControlMsgEvent captures heartbeat and close frames.
type ControlMsgEvent struct {
	// Type of control message.
	Type ControlMsgType `cbor:"1,keyasint"`

	// CloseCode is the close code for close messages.
	CloseCode *int `cbor:"2,keyasint,omitempty"`

	// CloseReason is the peer-supplied reason text.
	CloseReason string `cbor:"3,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	// ControlMsgPing indicates a ping message.
	ControlMsgPing ControlMsgType = 0
	// ControlMsgPong indicates a pong message.
	ControlMsgPong ControlMsgType = 1
	// ControlMsgClose indicates a close message.
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Message is a human-readable summary.
	Message string `cbor:"1,keyasint"`

	// Code is the peer error code (if applicable).
	Code *int `cbor:"2,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`

	// Details is the sanitized error payload (see Sanitize).
	Details any `cbor:"4,keyasint,omitempty"`
}

// MessageEvent summarizes an application frame without its payload.
type MessageEvent struct {
	// Name is the wire event name.
	Name string `cbor:"1,keyasint"`

	// Channel is the target channel, if any.
	Channel string `cbor:"2,keyasint,omitempty"`

	// Size is the encoded frame size in bytes.
	Size int `cbor:"3,keyasint"`
}
