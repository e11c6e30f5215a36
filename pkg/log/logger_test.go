package log

import (
	"sync"
	"testing"
	"time"
)

// mockLogger records events for testing
type mockLogger struct {
	events []Event
}

func (m *mockLogger) Log(event Event) {
	m.events = append(m.events, event)
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}
	l.Log(Event{ConnectionID: "x"})
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	m := &mockLogger{}
	if OrNoop(m) != Logger(m) {
		t.Error("OrNoop should return the given logger")
	}
}

func TestMultiLoggerCallsAll(t *testing.T) {
	mock1 := &mockLogger{}
	mock2 := &mockLogger{}

	multi := NewMultiLogger(mock1, nil, mock2)
	if multi.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", multi.Len())
	}

	multi.Log(Event{Timestamp: time.Now(), ConnectionID: "conn-123", Category: CategoryState})

	for i, mock := range []*mockLogger{mock1, mock2} {
		if len(mock.events) != 1 {
			t.Errorf("logger %d: got %d events, want 1", i, len(mock.events))
			continue
		}
		if mock.events[0].ConnectionID != "conn-123" {
			t.Errorf("logger %d: ConnectionID = %q, want %q", i, mock.events[0].ConnectionID, "conn-123")
		}
	}
}

func TestMultiLoggerEmptyList(t *testing.T) {
	NewMultiLogger().Log(Event{ConnectionID: "conn-123"})
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Log(Event{Category: CategoryError, Error: &ErrorEventData{Message: "x"}})
		}()
	}
	wg.Wait()
	r.Log(Event{Category: CategoryState, StateChange: &StateChangeEvent{NewState: "initialized"}})
	r.Log(Event{Category: CategoryState, StateChange: &StateChangeEvent{NewState: "connecting"}})

	if got := len(r.Events()); got != 12 {
		t.Errorf("len(Events()) = %d, want 12", got)
	}

	cat := CategoryError
	if got := len(r.Match(Filter{Category: &cat})); got != 10 {
		t.Errorf("len(Match(error)) = %d, want 10", got)
	}

	states := r.States()
	if len(states) != 2 || states[0] != "initialized" || states[1] != "connecting" {
		t.Errorf("States() = %v, want [initialized connecting]", states)
	}

	r.Reset()
	if got := len(r.Events()); got != 0 {
		t.Errorf("after Reset: %d events, want 0", got)
	}
}
