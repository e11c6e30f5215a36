package protocol

import "fmt"

// CodeClass is the reconnection policy implied by a server code.
type CodeClass uint8

const (
	// ClassDefault covers codes outside the server-defined ranges.
	ClassDefault CodeClass = iota

	// ClassRefused (4000-4099): the server will not accept this client as
	// configured. Reconnecting is pointless.
	ClassRefused

	// ClassBackoff (4100-4199): temporary server-side condition; reconnect
	// after backing off.
	ClassBackoff

	// ClassReconnect (4200-4299): the server closed the connection but a new
	// one may be opened immediately.
	ClassReconnect
)

// String returns the class name.
func (c CodeClass) String() string {
	switch c {
	case ClassDefault:
		return "DEFAULT"
	case ClassRefused:
		return "REFUSED"
	case ClassBackoff:
		return "BACKOFF"
	case ClassReconnect:
		return "RECONNECT"
	default:
		return "UNKNOWN"
	}
}

// Classify maps a close or error code to its class.
func Classify(code int) CodeClass {
	switch {
	case code >= 4000 && code < 4100:
		return ClassRefused
	case code >= 4100 && code < 4200:
		return ClassBackoff
	case code >= 4200 && code < 4300:
		return ClassReconnect
	default:
		return ClassDefault
	}
}

// PeerError is an error reported by the server in a pulse:error frame or
// through a close code.
type PeerError struct {
	Code    int
	Message string
}

// Error implements error.
func (e *PeerError) Error() string {
	if e.Code == 0 {
		return "server error: " + e.Message
	}
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Class returns the reconnection class of the error code.
func (e *PeerError) Class() CodeClass {
	return Classify(e.Code)
}

type errorData struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
}

// ParseError extracts a PeerError from a pulse:error message. A missing or
// null code yields Code 0.
func ParseError(m *Message) (*PeerError, error) {
	if m == nil || m.Event != EventError {
		return nil, fmt.Errorf("not a %s message", EventError)
	}
	var d errorData
	if err := m.UnmarshalData(&d); err != nil {
		return nil, err
	}
	pe := &PeerError{Message: d.Message}
	if d.Code != nil {
		pe.Code = *d.Code
	}
	return pe, nil
}
