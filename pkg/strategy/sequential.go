package strategy

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// Sequential tries its children one after another.
type Sequential struct {
	name     string
	timeout  time.Duration
	clock    clock.Clock
	children []Strategy
}

// NewSequential creates a Sequential strategy. A positive timeout bounds
// each child's attempt; zero leaves attempts unbounded.
func NewSequential(name string, timeout time.Duration, clk clock.Clock, children ...Strategy) *Sequential {
	if clk == nil {
		clk = clock.New()
	}
	return &Sequential{name: name, timeout: timeout, clock: clk, children: children}
}

// Name returns the strategy name.
func (s *Sequential) Name() string {
	return s.name
}

// IsSupported reports whether any child is supported.
func (s *Sequential) IsSupported() bool {
	for _, c := range s.children {
		if c.IsSupported() {
			return true
		}
	}
	return false
}

// Connect returns the first child to open. When every child fails the
// error is an *ExhaustedError listing each failure.
func (s *Sequential) Connect(ctx context.Context) (*transport.Transport, error) {
	var errs error
	for _, c := range s.children {
		if !c.IsSupported() {
			errs = multierr.Append(errs, &CandidateError{Name: c.Name(), Err: ErrUnsupported})
			continue
		}

		cctx, cancel := ctx, context.CancelFunc(func() {})
		if s.timeout > 0 {
			cctx, cancel = s.clock.WithTimeout(ctx, s.timeout)
		}
		tr, err := c.Connect(cctx)
		cancel()

		if err == nil {
			return tr, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = multierr.Append(errs, err)
	}
	return nil, newExhausted(s.name, errs)
}

var _ Strategy = (*Sequential)(nil)
