// Package emitter provides ordered, re-entrancy-safe event dispatch.
//
// Components post events while holding their own state lock and drain them
// after releasing it. Exactly one goroutine delivers at a time, in post
// order, so listeners observe a component's events in the order its state
// changed and may safely call back into the component.
package emitter

import (
	"sync"
	"sync/atomic"
)

type listener[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// Emitter delivers values of type T to bound listeners.
// The zero value is ready to use.
type Emitter[T any] struct {
	mu        sync.Mutex
	listeners []*listener[T]
	queue     []T
	held      bool
	draining  bool
}

// Bind registers fn and returns a function that removes it. Unbinding takes
// effect immediately, including for events already queued.
func (e *Emitter[T]) Bind(fn func(T)) (unbind func()) {
	l := &listener[T]{fn: fn}
	l.active.Store(true)

	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Store(false)
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, cur := range e.listeners {
				if cur == l {
					e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// UnbindAll removes every listener.
func (e *Emitter[T]) UnbindAll() {
	e.mu.Lock()
	for _, l := range e.listeners {
		l.active.Store(false)
	}
	e.listeners = nil
	e.mu.Unlock()
}

// Listeners returns the number of bound listeners.
func (e *Emitter[T]) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Post queues v for delivery without dispatching it. It never calls
// listeners and is safe to use while holding other locks.
func (e *Emitter[T]) Post(v T) {
	e.mu.Lock()
	e.queue = append(e.queue, v)
	e.mu.Unlock()
}

// Drain delivers queued values. If another goroutine is already delivering,
// or delivery is held, Drain returns immediately and the queued values are
// delivered by that goroutine or on Release.
func (e *Emitter[T]) Drain() {
	e.mu.Lock()
	if e.draining || e.held {
		e.mu.Unlock()
		return
	}
	e.draining = true

	for len(e.queue) > 0 && !e.held {
		v := e.queue[0]
		var zero T
		e.queue[0] = zero
		e.queue = e.queue[1:]
		snapshot := e.listeners
		e.mu.Unlock()

		for _, l := range snapshot {
			if l.active.Load() {
				l.fn(v)
			}
		}

		e.mu.Lock()
	}

	e.draining = false
	e.mu.Unlock()
}

// Emit posts v and drains.
func (e *Emitter[T]) Emit(v T) {
	e.Post(v)
	e.Drain()
}

// Hold parks delivery. Values posted while held stay queued in order.
func (e *Emitter[T]) Hold() {
	e.mu.Lock()
	e.held = true
	e.mu.Unlock()
}

// Release resumes delivery and drains everything queued while held.
func (e *Emitter[T]) Release() {
	e.mu.Lock()
	e.held = false
	e.mu.Unlock()
	e.Drain()
}

// Pending returns the number of queued, undelivered values.
func (e *Emitter[T]) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}
