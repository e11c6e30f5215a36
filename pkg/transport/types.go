package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	ErrUnknownTransport   = errors.New("unknown transport")
	ErrDuplicateTransport = errors.New("transport already registered")
	ErrInvalidName        = errors.New("invalid transport name")
)

// ErrorTypeWebSocket is the SocketError type for raw socket failures.
const ErrorTypeWebSocket = "WebSocketError"

// State is the lifecycle state of a Transport.
type State uint8

const (
	// StateUnset is the state of a freshly created Transport.
	StateUnset State = iota

	// StateInitialized follows Initialize.
	StateInitialized

	// StateConnecting means a raw socket is being opened.
	StateConnecting

	// StateOpen means the raw socket is open and Send is accepted.
	StateOpen

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name as written to diagnostics.
func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateInitialized:
		return "initialized"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventType identifies a Transport event.
type EventType uint8

const (
	EventInitialized EventType = iota
	EventConnecting
	EventOpen
	EventMessage
	EventError
	EventClosed
)

// String returns the event name.
func (e EventType) String() string {
	switch e {
	case EventInitialized:
		return "initialized"
	case EventConnecting:
		return "connecting"
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered to Transport listeners.
type Event struct {
	Type EventType

	// Data is the unchanged inbound payload of a message event.
	Data []byte

	// Error is set on error events.
	Error *SocketError

	// Close is set on closed events that came from the socket. It is nil
	// when a Transport without a socket is closed directly.
	Close *CloseInfo
}

// SocketError describes a raw socket failure.
type SocketError struct {
	Type string

	// Error is the sanitized payload reported by the socket.
	Error any
}

// Err converts the SocketError to an error value.
func (e *SocketError) Err() error {
	return fmt.Errorf("%s: %v", e.Type, e.Error)
}

// CloseInfo describes how a raw socket closed.
type CloseInfo struct {
	Code     int
	Reason   string
	WasClean bool
}

// Socket is a raw socket created by a SocketFactory.
type Socket interface {
	// Send writes one text frame. It is called from a single goroutine.
	Send(data []byte) error

	// Close starts closing the socket. The close is reported later through
	// SocketHandler.OnClose. Close may be called more than once.
	Close() error
}

// SocketHandler receives raw socket callbacks. Implementations of Socket
// call it from their own goroutines, one callback at a time, and never
// from within SocketFactory.NewSocket.
type SocketHandler interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err any)
	OnClose(info CloseInfo)
}

// SocketFactory creates raw sockets for one transport name.
type SocketFactory interface {
	// IsSupported reports whether sockets can be created in this
	// environment.
	IsSupported() bool

	// NewSocket starts opening a socket to url. It must return without
	// waiting for the connection to be established.
	NewSocket(url string, handler SocketHandler) (Socket, error)
}
