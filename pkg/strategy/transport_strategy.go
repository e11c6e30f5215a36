package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pulse-realtime/pulse-go/pkg/log"
	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// TransportConfig configures a TransportStrategy.
type TransportConfig struct {
	// Name is the registry name of the transport.
	Name string

	Registry *transport.Registry
	Options  transport.Options

	// Observer receives the attempt outcome (optional).
	Observer AttemptObserver

	Clock clock.Clock
}

// TransportStrategy connects a single registry transport.
type TransportStrategy struct {
	cfg   TransportConfig
	label string
}

// NewTransport creates a leaf strategy.
func NewTransport(cfg TransportConfig) *TransportStrategy {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	cfg.Options.Diagnostics = log.OrNoop(cfg.Options.Diagnostics)
	label := cfg.Name
	if cfg.Options.Encrypted {
		label += "s"
	}
	return &TransportStrategy{cfg: cfg, label: label}
}

// Name returns the transport label ("websockets" when encrypted).
func (s *TransportStrategy) Name() string {
	return s.label
}

// IsSupported reports whether the transport is registered and usable.
func (s *TransportStrategy) IsSupported() bool {
	return s.cfg.Registry != nil && s.cfg.Registry.IsSupported(s.cfg.Name)
}

// Connect creates, initializes and connects a new Transport, returning it
// once open. Cancelling ctx closes the Transport.
func (s *TransportStrategy) Connect(ctx context.Context) (*transport.Transport, error) {
	if !s.IsSupported() {
		return nil, &CandidateError{Name: s.label, Err: ErrUnsupported}
	}
	tr, err := s.cfg.Registry.New(s.cfg.Name, s.cfg.Options)
	if err != nil {
		return nil, &CandidateError{Name: s.label, Err: err}
	}

	result := make(chan error, 1)
	var (
		mu      sync.Mutex
		lastErr error
	)
	unbind := tr.Bind(func(e transport.Event) {
		switch e.Type {
		case transport.EventOpen:
			tr.HoldEvents()
			select {
			case result <- nil:
			default:
			}
		case transport.EventError:
			mu.Lock()
			lastErr = e.Error.Err()
			mu.Unlock()
		case transport.EventClosed:
			mu.Lock()
			err := ErrTransportClosed
			if lastErr != nil {
				err = fmt.Errorf("%w: %v", ErrTransportClosed, lastErr)
			}
			mu.Unlock()
			select {
			case result <- err:
			default:
			}
		}
	})

	start := s.cfg.Clock.Now()
	tr.Initialize()
	tr.Connect()

	select {
	case err := <-result:
		unbind()
		latency := s.cfg.Clock.Since(start)
		if err != nil {
			s.observe(OutcomeFailed, latency)
			s.logFailure(tr, err)
			return nil, &CandidateError{Name: s.label, Err: err}
		}
		s.observe(OutcomeOpen, latency)
		return tr, nil

	case <-ctx.Done():
		unbind()
		tr.Close()
		s.observe(outcomeFor(ctx.Err()), s.cfg.Clock.Since(start))
		return nil, &CandidateError{Name: s.label, Err: ctx.Err()}
	}
}

func (s *TransportStrategy) observe(o Outcome, latency time.Duration) {
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveAttempt(s.label, o, latency)
	}
}

func (s *TransportStrategy) logFailure(tr *transport.Transport, err error) {
	s.cfg.Options.Diagnostics.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: tr.ID(),
		Transport:    s.label,
		Layer:        log.LayerStrategy,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Message: err.Error(),
			Context: "connect",
		},
	})
}

var _ Strategy = (*TransportStrategy)(nil)
