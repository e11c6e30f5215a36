package strategy

import (
	"context"

	"go.uber.org/multierr"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// Race runs its children concurrently and keeps the first to open.
type Race struct {
	name     string
	children []Strategy
}

// NewRace creates a Race strategy.
func NewRace(name string, children ...Strategy) *Race {
	return &Race{name: name, children: children}
}

// Name returns the strategy name.
func (r *Race) Name() string {
	return r.name
}

// IsSupported reports whether any child is supported.
func (r *Race) IsSupported() bool {
	for _, c := range r.children {
		if c.IsSupported() {
			return true
		}
	}
	return false
}

type raceResult struct {
	tr  *transport.Transport
	err error
}

// Connect starts every supported child. The first open Transport wins;
// the other attempts are canceled at once, and any Transport that opens
// after the winner was chosen is closed.
func (r *Race) Connect(ctx context.Context) (*transport.Transport, error) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var errs error
	results := make(chan raceResult, len(r.children))
	running := 0
	for _, c := range r.children {
		if !c.IsSupported() {
			errs = multierr.Append(errs, &CandidateError{Name: c.Name(), Err: ErrUnsupported})
			continue
		}
		running++
		go func(c Strategy) {
			tr, err := c.Connect(rctx)
			results <- raceResult{tr: tr, err: err}
		}(c)
	}

	for i := 0; i < running; i++ {
		res := <-results
		if res.err == nil {
			cancel()
			go closeLateWinners(results, running-i-1)
			if ctx.Err() != nil {
				res.tr.UnbindAll()
				res.tr.Close()
				return nil, ctx.Err()
			}
			return res.tr, nil
		}
		errs = multierr.Append(errs, res.err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, newExhausted(r.name, errs)
}

func closeLateWinners(results <-chan raceResult, n int) {
	for i := 0; i < n; i++ {
		if res := <-results; res.tr != nil {
			res.tr.UnbindAll()
			res.tr.Close()
		}
	}
}

var _ Strategy = (*Race)(nil)
