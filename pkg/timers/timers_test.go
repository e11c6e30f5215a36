package timers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterFuncFires(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var fired atomic.Bool
	timer := s.AfterFunc(5*time.Second, func() { fired.Store(true) })
	assert.True(t, timer.IsPending())

	mock.Add(4 * time.Second)
	assert.False(t, fired.Load())

	mock.Add(time.Second)
	require.Eventually(t, fired.Load, time.Second, time.Millisecond)
	assert.False(t, timer.IsPending())
	assert.False(t, timer.Cancel(), "Cancel after fire should report false")
}

func TestCancelPreventsCallback(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var fired atomic.Bool
	timer := s.AfterFunc(time.Second, func() { fired.Store(true) })
	assert.True(t, timer.Cancel())
	assert.False(t, timer.Cancel())
	assert.False(t, timer.IsPending())

	mock.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestNilTimer(t *testing.T) {
	var timer *Timer
	assert.False(t, timer.Cancel())
	assert.False(t, timer.IsPending())
}

func TestWallClockDefault(t *testing.T) {
	s := NewScheduler(nil)
	done := make(chan struct{})
	s.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.WithinDuration(t, time.Now(), s.Now(), time.Second)
}
