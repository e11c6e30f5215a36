// Package sockettest provides scripted raw sockets for tests.
//
// A Factory records every socket it creates. Tests drive each Socket by
// calling Open, Message, Error and Closed, which invoke the transport's
// handler exactly like a real socket's read loop would.
package sockettest

import (
	"sync"
	"testing"
	"time"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// Factory is a transport.SocketFactory that creates fake sockets.
type Factory struct {
	// Unsupported makes IsSupported report false.
	Unsupported bool

	// Err is returned by NewSocket when set.
	Err error

	// OpenAfter opens each new socket after the delay when positive.
	OpenAfter time.Duration

	// AutoClose reports a clean close (code 1000) asynchronously whenever
	// a socket is closed.
	AutoClose bool

	// OnSend is called on the writer's goroutine for every payload sent.
	OnSend func(s *Socket, data []byte)

	// OnNew is called with the sockets created so far before each new
	// socket is recorded.
	OnNew func(existing []*Socket)

	mu      sync.Mutex
	sockets []*Socket
}

// NewFactory creates a Factory whose sockets are driven manually.
func NewFactory() *Factory {
	return &Factory{}
}

// IsSupported implements transport.SocketFactory.
func (f *Factory) IsSupported() bool {
	return !f.Unsupported
}

// NewSocket implements transport.SocketFactory.
func (f *Factory) NewSocket(url string, h transport.SocketHandler) (transport.Socket, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	s := &Socket{URL: url, handler: h, factory: f}

	if f.OnNew != nil {
		f.OnNew(f.Sockets())
	}

	f.mu.Lock()
	f.sockets = append(f.sockets, s)
	f.mu.Unlock()

	if f.OpenAfter > 0 {
		s.mu.Lock()
		s.openTimer = time.AfterFunc(f.OpenAfter, s.Open)
		s.mu.Unlock()
	}
	return s, nil
}

// Sockets returns every socket created so far.
func (f *Factory) Sockets() []*Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Socket(nil), f.sockets...)
}

// Count returns the number of sockets created.
func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sockets)
}

// Last returns the most recently created socket, or nil.
func (f *Factory) Last() *Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sockets) == 0 {
		return nil
	}
	return f.sockets[len(f.sockets)-1]
}

// Await waits until at least n sockets exist and returns the n-th.
func (f *Factory) Await(t testing.TB, n int) *Socket {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.sockets) >= n {
			s := f.sockets[n-1]
			f.mu.Unlock()
			return s
		}
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for socket %d (have %d)", n, f.Count())
	return nil
}

// Socket is a fake raw socket.
type Socket struct {
	URL string

	handler transport.SocketHandler
	factory *Factory

	mu         sync.Mutex
	sent       [][]byte
	closeCalls int
	opened     bool
	notified   bool
	sendErr    error
	openTimer  *time.Timer
}

// Open reports the socket as open.
func (s *Socket) Open() {
	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()
	s.handler.OnOpen()
}

// Message delivers an inbound frame.
func (s *Socket) Message(data []byte) {
	s.handler.OnMessage(data)
}

// Error reports a socket error.
func (s *Socket) Error(err any) {
	s.handler.OnError(err)
}

// Closed reports the socket as closed with info.
func (s *Socket) Closed(info transport.CloseInfo) {
	s.mu.Lock()
	s.notified = true
	s.mu.Unlock()
	s.handler.OnClose(info)
}

// FailSends makes subsequent Send calls return err.
func (s *Socket) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

// Send implements transport.Socket.
func (s *Socket) Send(data []byte) error {
	s.mu.Lock()
	if s.sendErr != nil {
		err := s.sendErr
		s.mu.Unlock()
		return err
	}
	s.sent = append(s.sent, data)
	s.mu.Unlock()

	if s.factory.OnSend != nil {
		s.factory.OnSend(s, data)
	}
	return nil
}

// Close implements transport.Socket.
func (s *Socket) Close() error {
	s.mu.Lock()
	s.closeCalls++
	if s.openTimer != nil {
		s.openTimer.Stop()
	}
	notify := s.factory.AutoClose && !s.notified
	s.notified = s.notified || notify
	s.mu.Unlock()

	if notify {
		go s.handler.OnClose(transport.CloseInfo{Code: 1000, WasClean: true})
	}
	return nil
}

// Sent returns a copy of every payload written.
func (s *Socket) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

// CloseCalls returns how many times Close was called.
func (s *Socket) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// WasOpened reports whether Open was called.
func (s *Socket) WasOpened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

var (
	_ transport.SocketFactory = (*Factory)(nil)
	_ transport.Socket        = (*Socket)(nil)
)
