package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "test.plog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, event)
	}
}

func TestFileLoggerCreatesParentDir(t *testing.T) {
	path := createTestLogFile(t, nil)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file was not created: %v", err)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := createTestLogFile(t, []Event{{ConnectionID: "conn-1"}})

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	logger.Log(Event{ConnectionID: "conn-2"})
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	events := readAll(t, reader)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ConnectionID != "conn-1" || events[1].ConnectionID != "conn-2" {
		t.Errorf("order = [%s %s], want [conn-1 conn-2]", events[0].ConnectionID, events[1].ConnectionID)
	}
}

func TestFileLoggerConcurrentAndClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.plog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(Event{Timestamp: time.Now(), ConnectionID: "c"})
		}()
	}
	wg.Wait()
	logger.Close()
	logger.Log(Event{ConnectionID: "after-close"})
	if err := logger.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
	if logger.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", logger.Dropped())
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	if got := len(readAll(t, reader)); got != 20 {
		t.Errorf("got %d events, want 20", got)
	}
}

func TestFileLoggerCountsFailedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session", "test.plog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if logger.Path() != path {
		t.Errorf("Path() = %q, want %q", logger.Path(), path)
	}

	logger.Log(Event{ConnectionID: "kept"})
	// Release the descriptor behind the logger's back so the next write fails.
	logger.file.Close()
	logger.Log(Event{ConnectionID: "lost"})

	if logger.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", logger.Dropped())
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	events := readAll(t, reader)
	if len(events) != 1 || events[0].ConnectionID != "kept" {
		t.Errorf("events = %+v, want only the record written before the failure", events)
	}
}

func TestFilteredReader(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, []Event{
		{Timestamp: base, ConnectionID: "a", Transport: "websocket", Layer: LayerTransport, Category: CategoryState},
		{Timestamp: base.Add(time.Second), ConnectionID: "a", Transport: "websocket", Layer: LayerTransport, Category: CategoryError},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "m", Layer: LayerConnection, Category: CategoryState},
	})

	layer := LayerTransport
	category := CategoryState
	start := base.Add(500 * time.Millisecond)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"connection", Filter{ConnectionID: "a"}, 2},
		{"transport", Filter{Transport: "websocket"}, 2},
		{"layer", Filter{Layer: &layer}, 2},
		{"category", Filter{Category: &category}, 2},
		{"time start", Filter{TimeStart: &start}, 2},
		{"combined", Filter{Layer: &layer, Category: &category}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()
			if got := len(readAll(t, reader)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}
