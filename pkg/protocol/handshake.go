package protocol

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Handshake errors.
var (
	ErrNotHandshake       = errors.New("first message is not " + EventConnectionEstablished)
	ErrMalformedHandshake = errors.New("malformed handshake")
)

// Handshake is the payload of pulse:connection_established.
type Handshake struct {
	SocketID        string
	ActivityTimeout time.Duration
	PongTimeout     time.Duration
}

type handshakeData struct {
	SocketID        *string  `json:"socket_id"`
	ActivityTimeout *float64 `json:"activity_timeout"`
	PongTimeout     *float64 `json:"pong_timeout"`
}

// ParseHandshake extracts the handshake from the first server message.
// Socket id, activity timeout and pong timeout (both in seconds) are all
// required and the timeouts must be positive.
func ParseHandshake(m *Message) (Handshake, error) {
	if m == nil || m.Event != EventConnectionEstablished {
		return Handshake{}, ErrNotHandshake
	}

	var d handshakeData
	if err := m.UnmarshalData(&d); err != nil {
		return Handshake{}, fmt.Errorf("%w: %v", ErrMalformedHandshake, err)
	}

	switch {
	case d.SocketID == nil || *d.SocketID == "":
		return Handshake{}, fmt.Errorf("%w: missing socket_id", ErrMalformedHandshake)
	case d.ActivityTimeout == nil || *d.ActivityTimeout <= 0:
		return Handshake{}, fmt.Errorf("%w: missing activity_timeout", ErrMalformedHandshake)
	case d.PongTimeout == nil || *d.PongTimeout <= 0:
		return Handshake{}, fmt.Errorf("%w: missing pong_timeout", ErrMalformedHandshake)
	}

	h := Handshake{
		SocketID:        *d.SocketID,
		ActivityTimeout: seconds(*d.ActivityTimeout),
		PongTimeout:     seconds(*d.PongTimeout),
	}
	switch {
	case h.ActivityTimeout <= 0:
		return Handshake{}, fmt.Errorf("%w: activity_timeout too small", ErrMalformedHandshake)
	case h.PongTimeout <= 0:
		return Handshake{}, fmt.Errorf("%w: pong_timeout too small", ErrMalformedHandshake)
	}
	return h, nil
}

// EncodeHandshake builds a pulse:connection_established frame. Servers and
// tests use it; clients only parse.
func EncodeHandshake(h Handshake) ([]byte, error) {
	m, err := NewMessage(EventConnectionEstablished, map[string]any{
		"socket_id":        h.SocketID,
		"activity_timeout": h.ActivityTimeout.Seconds(),
		"pong_timeout":     h.PongTimeout.Seconds(),
	}, "")
	if err != nil {
		return nil, err
	}
	return m.Encode()
}

// maxSeconds is the largest value that still fits a time.Duration.
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// seconds converts s to a Duration, saturating at the largest Duration.
// Callers cap the result with their own limits.
func seconds(s float64) time.Duration {
	if s >= maxSeconds || math.IsInf(s, 1) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s * float64(time.Second))
}
