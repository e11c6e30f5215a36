package log

import (
	"os"
	"path/filepath"
	"sync"
)

// FileLogger is the session sink behind the protocol_log option. Each
// event becomes one record appended to the file, so a session file can be
// grown across client restarts and read back with Reader or pulse-log.
type FileLogger struct {
	path string

	mu      sync.Mutex
	file    *os.File
	dropped int
}

// NewFileLogger opens the session file at path, creating it and its
// directory when missing. Existing records are kept.
func NewFileLogger(path string) (*FileLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{path: path, file: f}, nil
}

// Path returns the session file location.
func (l *FileLogger) Path() string {
	return l.path
}

// Log appends event as a single write. Records that cannot be encoded or
// written are counted in Dropped; a connection never fails because its
// diagnostics could not be stored.
func (l *FileLogger) Log(event Event) {
	record, err := EncodeEvent(event)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	if err != nil {
		l.dropped++
		return
	}
	if _, err := l.file.Write(record); err != nil {
		l.dropped++
	}
}

// Dropped returns how many records were lost.
func (l *FileLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close releases the session file. Later calls to Log and Close do nothing.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return f.Close()
}

var _ Logger = (*FileLogger)(nil)
