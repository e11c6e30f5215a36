// Package timers schedules cancellable callbacks on a replaceable clock.
//
// Production code uses the wall clock; tests pass clock.NewMock() and
// advance time explicitly. A canceled Timer never runs its callback, even
// when cancellation races with expiry.
package timers

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	timerPending int32 = iota
	timerFired
	timerCanceled
)

// Scheduler creates timers on a clock.
type Scheduler struct {
	clock clock.Clock
}

// NewScheduler returns a Scheduler on c, or on the wall clock when c is nil.
func NewScheduler(c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.New()
	}
	return &Scheduler{clock: c}
}

// Clock returns the underlying clock.
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// Now returns the current time on the scheduler's clock.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// AfterFunc runs fn on its own goroutine once d has elapsed, unless the
// returned Timer is canceled first.
func (s *Scheduler) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = s.clock.AfterFunc(d, func() {
		if t.state.CompareAndSwap(timerPending, timerFired) {
			fn()
		}
	})
	return t
}

// Timer is a single scheduled callback.
type Timer struct {
	timer *clock.Timer
	state atomic.Int32
}

// Cancel prevents the callback from running. It reports whether the timer
// was still pending. Cancel on a nil Timer is a no-op.
func (t *Timer) Cancel() bool {
	if t == nil {
		return false
	}
	if !t.state.CompareAndSwap(timerPending, timerCanceled) {
		return false
	}
	t.timer.Stop()
	return true
}

// IsPending reports whether the callback has neither run nor been canceled.
func (t *Timer) IsPending() bool {
	return t != nil && t.state.Load() == timerPending
}
