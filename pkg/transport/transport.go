package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulse-realtime/pulse-go/pkg/emitter"
	"github.com/pulse-realtime/pulse-go/pkg/log"
	"github.com/pulse-realtime/pulse-go/pkg/version"
)

// Options configures a Transport.
type Options struct {
	// Key is the application key placed in the URL path.
	Key string

	// Host is the server host name.
	Host string

	// UnencryptedPort is used for ws:// connections.
	UnencryptedPort int

	// EncryptedPort is used for wss:// connections.
	EncryptedPort int

	// Encrypted selects wss:// and EncryptedPort.
	Encrypted bool

	// ProtocolVersion is the wire protocol revision (default: version.Protocol).
	ProtocolVersion int

	// ClientIdentifier is the client tag (default: version.ClientIdentifier).
	ClientIdentifier string

	// ClientVersion is the client version (default: version.Client).
	ClientVersion string

	// Diagnostics receives state and error records (nil = discard).
	Diagnostics log.Logger
}

func (o Options) withDefaults() Options {
	if o.ProtocolVersion == 0 {
		o.ProtocolVersion = version.Protocol
	}
	if o.ClientIdentifier == "" {
		o.ClientIdentifier = version.ClientIdentifier
	}
	if o.ClientVersion == "" {
		o.ClientVersion = version.Client
	}
	o.Diagnostics = log.OrNoop(o.Diagnostics)
	return o
}

// Transport is one attempt to open a raw socket.
type Transport struct {
	name    string
	factory SocketFactory
	opts    Options
	id      string

	mu       sync.Mutex
	state    State
	socket   Socket
	sendQ    [][]byte
	flushing bool

	events emitter.Emitter[Event]
}

// New creates a Transport in StateUnset.
func New(name string, factory SocketFactory, opts Options) *Transport {
	return &Transport{
		name:    name,
		factory: factory,
		opts:    opts.withDefaults(),
		id:      uuid.NewString(),
	}
}

// Name returns the registry name.
func (t *Transport) Name() string {
	return t.name
}

// Label returns the name used in diagnostics: the registry name, with an
// "s" suffix for encrypted transports.
func (t *Transport) Label() string {
	if t.opts.Encrypted {
		return t.name + "s"
	}
	return t.name
}

// ID returns the diagnostic connection id.
func (t *Transport) ID() string {
	return t.id
}

// Encrypted reports whether the Transport uses wss://.
func (t *Transport) Encrypted() bool {
	return t.opts.Encrypted
}

// State returns the current state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// URL returns the connection URL. The query is written literally.
func (t *Transport) URL() string {
	scheme, port := "ws", t.opts.UnencryptedPort
	if t.opts.Encrypted {
		scheme, port = "wss", t.opts.EncryptedPort
	}
	return fmt.Sprintf("%s://%s:%d/app/%s?protocol=%d&client=%s&version=%s",
		scheme, t.opts.Host, port, t.opts.Key,
		t.opts.ProtocolVersion, t.opts.ClientIdentifier, t.opts.ClientVersion)
}

// Bind registers a listener and returns its unbind function.
func (t *Transport) Bind(fn func(Event)) (unbind func()) {
	return t.events.Bind(fn)
}

// UnbindAll removes every listener.
func (t *Transport) UnbindAll() {
	t.events.UnbindAll()
}

// HoldEvents parks event delivery. Events keep queueing in order until
// ReleaseEvents. Strategies hold the events of a winning Transport so the
// new owner can bind before the first message is delivered.
func (t *Transport) HoldEvents() {
	t.events.Hold()
}

// ReleaseEvents resumes delivery, first delivering everything held.
func (t *Transport) ReleaseEvents() {
	t.events.Release()
}

// Initialize moves an unset Transport to initialized. Further calls do
// nothing.
func (t *Transport) Initialize() {
	t.mu.Lock()
	if t.state != StateUnset {
		t.mu.Unlock()
		return
	}
	t.setStateLocked(StateInitialized, "")
	t.events.Post(Event{Type: EventInitialized})
	t.mu.Unlock()

	t.events.Drain()
}

// Connect starts opening the raw socket. It returns false without side
// effects unless the Transport is unset or initialized. It also returns
// false when the factory fails to create a socket; the Transport is then
// closed after an error event.
func (t *Transport) Connect() bool {
	t.mu.Lock()
	if t.state != StateUnset && t.state != StateInitialized {
		t.mu.Unlock()
		return false
	}
	t.setStateLocked(StateConnecting, "")
	t.events.Post(Event{Type: EventConnecting})
	t.mu.Unlock()
	t.events.Drain()

	h := &socketHandler{t: t, ready: make(chan struct{})}
	socket, err := t.factory.NewSocket(t.URL(), h)

	t.mu.Lock()
	switch {
	case err != nil:
		h.stale = true
		if t.state != StateClosed {
			t.reportErrorLocked(err)
			t.setStateLocked(StateClosed, "socket creation failed")
			t.events.Post(Event{Type: EventClosed})
		}
		t.mu.Unlock()
		close(h.ready)
		t.events.Drain()
		return false

	case t.state == StateClosed:
		// Closed while the socket was being created.
		h.stale = true
		t.mu.Unlock()
		close(h.ready)
		_ = socket.Close()
		return true

	default:
		t.socket = socket
		t.mu.Unlock()
		close(h.ready)
		return true
	}
}

// Send queues data for the socket. It returns false unless the Transport
// is open. Queued payloads are written in FIFO order on a separate
// goroutine.
func (t *Transport) Send(data []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateOpen {
		return false
	}
	t.sendQ = append(t.sendQ, data)
	if !t.flushing {
		t.flushing = true
		go t.flush()
	}
	return true
}

func (t *Transport) flush() {
	for {
		t.mu.Lock()
		if t.state != StateOpen || len(t.sendQ) == 0 {
			t.sendQ = nil
			t.flushing = false
			t.mu.Unlock()
			return
		}
		data := t.sendQ[0]
		t.sendQ[0] = nil
		t.sendQ = t.sendQ[1:]
		socket := t.socket
		t.mu.Unlock()

		if err := socket.Send(data); err != nil {
			t.onError(err)
		}
	}
}

// Close asks the socket to close; the closed event follows the socket's
// close callback. Without a socket the Transport closes immediately.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return
	}
	socket := t.socket
	if socket == nil {
		t.setStateLocked(StateClosed, "closed before connect")
		t.events.Post(Event{Type: EventClosed})
		t.mu.Unlock()
		t.events.Drain()
		return
	}
	t.mu.Unlock()

	_ = socket.Close()
}

func (t *Transport) onOpen() {
	t.mu.Lock()
	if t.state != StateConnecting {
		t.mu.Unlock()
		return
	}
	t.setStateLocked(StateOpen, "")
	t.events.Post(Event{Type: EventOpen})
	t.mu.Unlock()

	t.events.Drain()
}

func (t *Transport) onMessage(data []byte) {
	t.mu.Lock()
	if t.state != StateOpen {
		t.mu.Unlock()
		return
	}
	t.events.Post(Event{Type: EventMessage, Data: data})
	t.mu.Unlock()

	t.events.Drain()
}

func (t *Transport) onError(err any) {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return
	}
	t.reportErrorLocked(err)
	t.mu.Unlock()

	t.events.Drain()
}

func (t *Transport) onClose(info CloseInfo) {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return
	}
	t.logCloseLocked(info)
	t.setStateLocked(StateClosed, info.Reason)
	t.socket = nil
	t.sendQ = nil
	t.events.Post(Event{Type: EventClosed, Close: &info})
	t.mu.Unlock()

	t.events.Drain()
}

func (t *Transport) reportErrorLocked(err any) {
	sanitized := log.Sanitize(err)
	t.opts.Diagnostics.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.id,
		Transport:    t.Label(),
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Message: "socket error",
			Context: t.state.String(),
			Details: sanitized,
		},
	})
	t.events.Post(Event{
		Type:  EventError,
		Error: &SocketError{Type: ErrorTypeWebSocket, Error: sanitized},
	})
}

func (t *Transport) setStateLocked(s State, reason string) {
	old := t.state
	t.state = s
	t.opts.Diagnostics.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.id,
		Transport:    t.Label(),
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

func (t *Transport) logCloseLocked(info CloseInfo) {
	code := info.Code
	t.opts.Diagnostics.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.id,
		Transport:    t.Label(),
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		Direction:    log.DirectionIn,
		ControlMsg: &log.ControlMsgEvent{
			Type:        log.ControlMsgClose,
			CloseCode:   &code,
			CloseReason: info.Reason,
		},
	})
}

// socketHandler forwards callbacks from one raw socket. Callbacks wait
// until Connect has recorded the socket, and a handler whose socket was
// discarded ignores them.
type socketHandler struct {
	t     *Transport
	ready chan struct{}
	stale bool
}

func (h *socketHandler) live() bool {
	<-h.ready
	return !h.stale
}

func (h *socketHandler) OnOpen() {
	if h.live() {
		h.t.onOpen()
	}
}

func (h *socketHandler) OnMessage(data []byte) {
	if h.live() {
		h.t.onMessage(data)
	}
}

func (h *socketHandler) OnError(err any) {
	if h.live() {
		h.t.onError(err)
	}
}

func (h *socketHandler) OnClose(info CloseInfo) {
	if h.live() {
		h.t.onClose(info)
	}
}

var _ SocketHandler = (*socketHandler)(nil)
