package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/pulse-realtime/pulse-go/pkg/emitter"
	"github.com/pulse-realtime/pulse-go/pkg/log"
	"github.com/pulse-realtime/pulse-go/pkg/protocol"
	"github.com/pulse-realtime/pulse-go/pkg/strategy"
	"github.com/pulse-realtime/pulse-go/pkg/timers"
	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// Connection errors.
var (
	ErrNoStrategy       = errors.New("no strategy configured")
	ErrDisconnected     = errors.New("connection disconnected")
	ErrNoTransports     = errors.New("no supported transports")
	ErrHandshake        = errors.New("handshake failed")
	ErrHandshakeTimeout = errors.New("handshake timeout")
	ErrPongTimeout      = errors.New("pong timeout")
	ErrConnectionLost   = errors.New("connection lost")
)

// Timeout defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultActivityTimeout  = 120 * time.Second
	DefaultPongTimeout      = 30 * time.Second
)

// Metrics receives lifecycle observations.
type Metrics interface {
	ObserveState(from, to State)
	ObserveRetry(delay time.Duration)
	ObserveHeartbeatTimeout()
}

type noopMetrics struct{}

func (noopMetrics) ObserveState(State, State)  {}
func (noopMetrics) ObserveRetry(time.Duration) {}
func (noopMetrics) ObserveHeartbeatTimeout()   {}

// Config configures a Manager.
type Config struct {
	// Strategy opens transports. Required.
	Strategy strategy.Strategy

	// Clock drives every timer (default: wall clock).
	Clock clock.Clock

	// Backoff shapes the delay between lost connections and retries.
	// The zero value selects DefaultBackoffConfig.
	Backoff BackoffConfig

	// HandshakeTimeout bounds the wait for connection-established after a
	// transport opens.
	HandshakeTimeout time.Duration

	// ActivityTimeout caps the activity timeout announced by the server.
	ActivityTimeout time.Duration

	// PongTimeout caps the pong timeout announced by the server.
	PongTimeout time.Duration

	// MaxConnectAttempts is the number of strategy runs in one connecting
	// phase before the manager gives up and backs off (default 1).
	MaxConnectAttempts int

	// Diagnostics receives connection-layer records (nil = discard).
	Diagnostics log.Logger

	// Logger receives operational logs (nil = discard).
	Logger *slog.Logger

	// Metrics receives lifecycle observations (optional).
	Metrics Metrics
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = DefaultBackoffConfig()
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.ActivityTimeout <= 0 {
		c.ActivityTimeout = DefaultActivityTimeout
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = 1
	}
	c.Diagnostics = log.OrNoop(c.Diagnostics)
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	return c
}

type eventKind uint8

const (
	kindState eventKind = iota
	kindMessage
	kindError
)

// event is the single queue entry type so state changes, messages and
// errors reach listeners in the order they happened.
type event struct {
	kind   eventKind
	change StateChange
	msg    *protocol.Message
	err    error
}

// Manager owns one logical connection.
type Manager struct {
	cfg     Config
	id      string
	sched   *timers.Scheduler
	backoff *Backoff
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	socketID  string
	active    *transport.Transport
	unbind    func()
	run       uint64
	cancelRun context.CancelFunc
	attempts  int
	closing   []*transport.Transport
	pending   *pendingRun

	activityTimeout time.Duration
	pongTimeout     time.Duration

	seq       uint64
	handshake timerSlot
	activity  timerSlot
	pong      timerSlot
	retry     timerSlot

	events emitter.Emitter[event]
}

// NewManager creates a Manager in StateInitialized.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Strategy == nil {
		return nil, ErrNoStrategy
	}
	cfg = cfg.withDefaults()
	id := uuid.NewString()

	return &Manager{
		cfg:     cfg,
		id:      id,
		sched:   timers.NewScheduler(cfg.Clock),
		backoff: NewBackoffWithConfig(cfg.Backoff),
		logger:  cfg.Logger.With("connection", id[:8]),
		state:   StateInitialized,
	}, nil
}

// ID returns the diagnostics id of the manager.
func (m *Manager) ID() string {
	return m.id
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SocketID returns the id assigned by the server, or "" when not connected.
func (m *Manager) SocketID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.socketID
}

// TransportLabel returns the label of the current transport, or "".
func (m *Manager) TransportLabel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.Label()
}

// OnStateChange registers fn for state transitions.
func (m *Manager) OnStateChange(fn func(StateChange)) (unbind func()) {
	return m.events.Bind(func(e event) {
		if e.kind == kindState {
			fn(e.change)
		}
	})
}

// OnMessage registers fn for application messages. Internal pulse:
// events are consumed by the manager and never delivered.
func (m *Manager) OnMessage(fn func(*protocol.Message)) (unbind func()) {
	return m.events.Bind(func(e event) {
		if e.kind == kindMessage {
			fn(e.msg)
		}
	})
}

// OnError registers fn for errors: transport errors, failed connection
// attempts, heartbeat timeouts and errors reported by the server.
func (m *Manager) OnError(fn func(error)) (unbind func()) {
	return m.events.Bind(func(e event) {
		if e.kind == kindError {
			fn(e.err)
		}
	})
}

// Connect starts connecting. It returns nil when a connection is already
// being established or maintained, ErrDisconnected after Disconnect and
// ErrNoTransports when no configured transport is usable.
func (m *Manager) Connect() error {
	m.mu.Lock()
	switch m.state {
	case StateDisconnected:
		m.mu.Unlock()
		return ErrDisconnected
	case StateFailed:
		m.mu.Unlock()
		return ErrNoTransports
	case StateInitialized:
	default:
		m.mu.Unlock()
		return nil
	}

	if !m.cfg.Strategy.IsSupported() {
		m.logger.Error("no supported transports", "strategy", m.cfg.Strategy.Name())
		m.reportLocked(ErrNoTransports)
		m.setStateLocked(StateFailed, ErrNoTransports)
		m.mu.Unlock()
		m.flush()
		return ErrNoTransports
	}

	m.startRunLocked()
	m.mu.Unlock()
	m.flush()
	return nil
}

// Disconnect closes the connection for good. Pending strategy runs are
// canceled and every timer stops.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state.Terminal() {
		m.mu.Unlock()
		return
	}
	m.stopRunLocked()
	m.cancelSlot(&m.retry)
	m.detachLocked()
	m.setStateLocked(StateDisconnected, nil)
	m.logger.Info("disconnected")
	m.mu.Unlock()

	m.flush()
}

// Send writes a raw frame. It returns false unless connected.
func (m *Manager) Send(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected || m.active == nil {
		return false
	}
	return m.active.Send(data)
}

// SendEvent encodes and sends an event frame. It returns false when not
// connected or when data cannot be encoded.
func (m *Manager) SendEvent(name string, data any, channel string) bool {
	msg, err := protocol.NewMessage(name, data, channel)
	if err != nil {
		m.logger.Warn("cannot encode event", "event", name, "error", err)
		return false
	}
	frame, err := msg.Encode()
	if err != nil {
		m.logger.Warn("cannot encode event", "event", name, "error", err)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected || m.active == nil {
		return false
	}
	if !m.active.Send(frame) {
		return false
	}
	m.logMessageLocked(log.DirectionOut, msg, len(frame))
	return true
}

func (m *Manager) startRunLocked() {
	m.stopRunLocked()
	m.cancelSlot(&m.retry)

	m.run++
	run := m.run
	m.attempts++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelRun = cancel

	m.setStateLocked(StateConnecting, nil)
	m.logger.Debug("running strategy", "strategy", m.cfg.Strategy.Name(), "attempt", m.attempts)

	// Started by flush once the detached transports are closed.
	m.pending = &pendingRun{ctx: ctx, run: run}
}

// pendingRun is a strategy run scheduled under the lock.
type pendingRun struct {
	ctx context.Context
	run uint64
}

// stopRunLocked invalidates the current strategy run, if any.
func (m *Manager) stopRunLocked() {
	m.run++
	m.pending = nil
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
}

func (m *Manager) runStrategy(ctx context.Context, run uint64) {
	tr, err := m.cfg.Strategy.Connect(ctx)

	m.mu.Lock()
	if run != m.run {
		m.mu.Unlock()
		if tr != nil {
			tr.Close()
		}
		return
	}
	m.cancelRun()
	m.cancelRun = nil

	if err != nil {
		m.logger.Warn("strategy failed", "strategy", m.cfg.Strategy.Name(), "error", err)
		m.connectFailedLocked(err)
		m.mu.Unlock()
		m.flush()
		return
	}

	m.attachLocked(tr)
	m.mu.Unlock()

	tr.ReleaseEvents()
	m.flush()
}

func (m *Manager) attachLocked(tr *transport.Transport) {
	m.active = tr
	m.socketID = ""
	m.unbind = tr.Bind(func(e transport.Event) {
		m.onTransportEvent(tr, e)
	})
	m.armLocked(&m.handshake, m.cfg.HandshakeTimeout, m.handshakeTimeoutLocked)
	m.logger.Debug("transport open, awaiting handshake", "transport", tr.Label())
}

// detachLocked cancels connection timers and releases the current
// transport. The transport is closed by the next flush.
func (m *Manager) detachLocked() {
	m.cancelSlot(&m.handshake)
	m.cancelSlot(&m.activity)
	m.cancelSlot(&m.pong)

	if m.active == nil {
		return
	}
	m.unbind()
	m.unbind = nil
	m.closing = append(m.closing, m.active)
	m.active = nil
	m.socketID = ""
}

// flush closes detached transports, then starts a scheduled strategy run
// and delivers queued events. It must be called without m.mu held.
func (m *Manager) flush() {
	m.mu.Lock()
	closing := m.closing
	m.closing = nil
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, tr := range closing {
		tr.Close()
	}
	if pending != nil {
		m.mu.Lock()
		current := pending.run == m.run
		m.mu.Unlock()
		if current {
			go m.runStrategy(pending.ctx, pending.run)
		}
	}
	m.events.Drain()
}

func (m *Manager) onTransportEvent(tr *transport.Transport, e transport.Event) {
	m.mu.Lock()
	if tr != m.active {
		m.mu.Unlock()
		return
	}

	switch e.Type {
	case transport.EventMessage:
		m.handleFrameLocked(e.Data)
	case transport.EventError:
		var err error = ErrConnectionLost
		if e.Error != nil {
			err = e.Error.Err()
		}
		m.logger.Debug("transport error", "transport", tr.Label(), "error", err)
		m.reportLocked(fmt.Errorf("transport %s: %w", tr.Label(), err))
	case transport.EventClosed:
		m.transportClosedLocked(e.Close)
	}
	m.mu.Unlock()

	m.flush()
}

func (m *Manager) handleFrameLocked(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		if m.state == StateConnecting {
			m.handshakeFailedLocked(err)
			return
		}
		m.logger.Warn("dropping undecodable frame", "size", len(data), "error", err)
		m.reportLocked(err)
		m.touchLocked()
		return
	}
	m.logMessageLocked(log.DirectionIn, msg, len(data))

	if m.state == StateConnecting {
		m.handshakeLocked(msg)
		return
	}

	m.touchLocked()
	switch msg.Event {
	case protocol.EventPing:
		m.logControlLocked(log.DirectionIn, log.ControlMsgPing)
		if m.active.Send(protocol.Pong()) {
			m.logControlLocked(log.DirectionOut, log.ControlMsgPong)
		}
	case protocol.EventPong:
		m.logControlLocked(log.DirectionIn, log.ControlMsgPong)
	case protocol.EventError:
		// The server follows up with a close frame; its code drives the
		// reconnection policy.
		if pe, err := protocol.ParseError(msg); err == nil {
			m.reportLocked(pe)
		} else {
			m.reportLocked(err)
		}
	default:
		if !msg.IsInternal() {
			m.events.Post(event{kind: kindMessage, msg: msg})
		}
	}
}

func (m *Manager) handshakeLocked(msg *protocol.Message) {
	if msg.Event == protocol.EventError {
		pe, err := protocol.ParseError(msg)
		if err != nil {
			m.handshakeFailedLocked(err)
			return
		}
		m.lostLocked(pe, pe.Code)
		return
	}

	h, err := protocol.ParseHandshake(msg)
	if err != nil {
		m.handshakeFailedLocked(err)
		return
	}

	m.cancelSlot(&m.handshake)
	m.socketID = h.SocketID
	m.activityTimeout = min(h.ActivityTimeout, m.cfg.ActivityTimeout)
	m.pongTimeout = min(h.PongTimeout, m.cfg.PongTimeout)
	m.attempts = 0
	m.backoff.Reset()

	m.setStateLocked(StateConnected, nil)
	m.logger.Info("connected",
		"socket_id", h.SocketID,
		"transport", m.active.Label(),
		"activity_timeout", m.activityTimeout,
		"pong_timeout", m.pongTimeout)
	m.touchLocked()
}

func (m *Manager) handshakeFailedLocked(err error) {
	err = fmt.Errorf("%w: %w", ErrHandshake, err)
	m.logger.Warn("handshake failed", "error", err)
	m.detachLocked()
	m.connectFailedLocked(err)
}

func (m *Manager) handshakeTimeoutLocked() {
	if m.state != StateConnecting || m.active == nil {
		return
	}
	m.logger.Warn("handshake timeout", "transport", m.active.Label(), "timeout", m.cfg.HandshakeTimeout)
	m.detachLocked()
	m.connectFailedLocked(ErrHandshakeTimeout)
}

func (m *Manager) transportClosedLocked(info *transport.CloseInfo) {
	var code int
	var reason string
	if info != nil {
		code, reason = info.Code, info.Reason
	}

	var cause error
	if protocol.Classify(code) == protocol.ClassDefault {
		cause = fmt.Errorf("%w: close code %d", ErrConnectionLost, code)
	} else {
		cause = &protocol.PeerError{Code: code, Message: reason}
	}
	m.logger.Info("transport closed", "code", code, "reason", reason)
	m.lostLocked(cause, code)
}

// lostLocked applies the close-code policy after the current transport
// stopped being usable.
func (m *Manager) lostLocked(cause error, code int) {
	connecting := m.state == StateConnecting
	m.detachLocked()

	class := protocol.Classify(code)
	if class != protocol.ClassDefault {
		m.reportLocked(cause)
	}

	switch class {
	case protocol.ClassRefused:
		m.logger.Warn("server refused connection", "code", code, "error", cause)
		m.stopRunLocked()
		m.setStateLocked(StateDisconnected, cause)
	case protocol.ClassReconnect:
		m.attempts = 0
		m.startRunLocked()
	case protocol.ClassBackoff:
		m.unavailableLocked(cause)
	default:
		if connecting {
			m.connectFailedLocked(cause)
			return
		}
		m.unavailableLocked(cause)
	}
}

func (m *Manager) connectFailedLocked(err error) {
	m.reportLocked(err)
	if m.attempts < m.cfg.MaxConnectAttempts {
		m.logger.Info("retrying connection", "attempt", m.attempts+1, "error", err)
		m.startRunLocked()
		return
	}
	m.unavailableLocked(err)
}

func (m *Manager) unavailableLocked(cause error) {
	m.attempts = 0
	m.setStateLocked(StateUnavailable, cause)

	delay := m.backoff.Next()
	m.cfg.Metrics.ObserveRetry(delay)
	m.logger.Info("connection unavailable", "retry_in", delay, "error", cause)
	m.armLocked(&m.retry, delay, m.retryLocked)
}

func (m *Manager) retryLocked() {
	if m.state != StateUnavailable {
		return
	}
	m.startRunLocked()
}

func (m *Manager) reportLocked(err error) {
	m.events.Post(event{kind: kindError, err: err})
	m.logErrorLocked(err)
}

func (m *Manager) setStateLocked(s State, cause error) {
	if m.state == s {
		return
	}
	prev := m.state
	m.state = s
	m.events.Post(event{kind: kindState, change: StateChange{Previous: prev, Current: s, Err: cause}})
	m.cfg.Metrics.ObserveState(prev, s)

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	m.diag(log.Event{
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: prev.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
	m.logger.Debug("state changed", "from", prev, "to", s)
}
