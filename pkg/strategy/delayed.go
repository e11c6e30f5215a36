package strategy

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// Delayed waits before running its child.
type Delayed struct {
	child Strategy
	delay time.Duration
	clock clock.Clock
}

// NewDelayed wraps child so that it starts after delay.
func NewDelayed(child Strategy, delay time.Duration, clk clock.Clock) *Delayed {
	if clk == nil {
		clk = clock.New()
	}
	return &Delayed{child: child, delay: delay, clock: clk}
}

// Name returns the child's name.
func (d *Delayed) Name() string {
	return d.child.Name()
}

// IsSupported returns the child's support.
func (d *Delayed) IsSupported() bool {
	return d.child.IsSupported()
}

// Connect waits for the delay, then runs the child. Cancellation during
// the wait returns without starting the child.
func (d *Delayed) Connect(ctx context.Context) (*transport.Transport, error) {
	if d.delay > 0 {
		timer := d.clock.Timer(d.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, &CandidateError{Name: d.Name(), Err: ctx.Err()}
		}
	}
	return d.child.Connect(ctx)
}

var _ Strategy = (*Delayed)(nil)
