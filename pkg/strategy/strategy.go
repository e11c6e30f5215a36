package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// Strategy errors.
var (
	ErrUnsupported     = errors.New("transport not supported")
	ErrTransportClosed = errors.New("transport closed before opening")
	ErrNoCandidates    = errors.New("no candidates")
)

// Strategy produces an open Transport.
type Strategy interface {
	// Name identifies the strategy in errors, metrics and the cache.
	Name() string

	// IsSupported reports whether Connect can succeed in this environment.
	IsSupported() bool

	// Connect runs the strategy once. On success the returned Transport is
	// open and its events are held.
	Connect(ctx context.Context) (*transport.Transport, error)
}

// Outcome of one transport attempt.
type Outcome uint8

const (
	OutcomeOpen Outcome = iota
	OutcomeFailed
	OutcomeCanceled
	OutcomeTimeout
)

// String returns the outcome label.
func (o Outcome) String() string {
	switch o {
	case OutcomeOpen:
		return "open"
	case OutcomeFailed:
		return "failed"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// AttemptObserver receives the outcome of every transport attempt.
type AttemptObserver interface {
	ObserveAttempt(transport string, outcome Outcome, latency time.Duration)
}

// CandidateError is the failure of one named candidate.
type CandidateError struct {
	Name string
	Err  error
}

func (e *CandidateError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}

// ExhaustedError reports that every candidate of a strategy failed.
type ExhaustedError struct {
	Strategy string
	err      error
}

func newExhausted(name string, errs error) *ExhaustedError {
	if errs == nil {
		errs = ErrNoCandidates
	}
	return &ExhaustedError{Strategy: name, err: errs}
}

// Errors returns each candidate's failure in the order they were recorded.
func (e *ExhaustedError) Errors() []error {
	return multierr.Errors(e.err)
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Errors()))
	for _, err := range e.Errors() {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("%s: all transports failed: %s", e.Strategy, strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	return e.Errors()
}

func outcomeFor(ctxErr error) Outcome {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	return OutcomeCanceled
}
