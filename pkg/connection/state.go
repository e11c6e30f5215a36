package connection

// State is the lifecycle state of a Manager.
type State uint8

const (
	// StateInitialized is the state before the first Connect.
	StateInitialized State = iota

	// StateConnecting covers strategy runs and the handshake.
	StateConnecting

	// StateConnected means the handshake completed and the heartbeat runs.
	StateConnected

	// StateUnavailable means the connection was lost and a retry is
	// scheduled.
	StateUnavailable

	// StateDisconnected is terminal: Disconnect was called or the server
	// refused the client.
	StateDisconnected

	// StateFailed is terminal: no configured transport is usable.
	StateFailed
)

// String returns the state name as used in diagnostics.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateUnavailable:
		return "unavailable"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// StateChange describes one transition.
type StateChange struct {
	Previous State
	Current  State

	// Err is the cause of the transition, if any.
	Err error
}
