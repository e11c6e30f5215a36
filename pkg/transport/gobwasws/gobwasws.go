// Package gobwasws provides the "websocket-lite" raw socket on top of
// github.com/gobwas/ws. It has a smaller footprint than gorillaws and is
// the usual fallback candidate in a race.
package gobwasws

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// Name is the registry name of this transport.
const Name = "websocket-lite"

// Defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultCloseGrace       = time.Second
)

// ErrNotOpen is returned by Send before the socket is open.
var ErrNotOpen = errors.New("websocket not open")

// Config configures the dialer.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	CloseGrace       time.Duration
	TLSConfig        *tls.Config
}

// Factory creates gobwas/ws sockets.
type Factory struct {
	cfg    Config
	dialer ws.Dialer
}

// NewFactory creates a Factory, filling zero Config fields with defaults.
func NewFactory(cfg Config) *Factory {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.CloseGrace == 0 {
		cfg.CloseGrace = DefaultCloseGrace
	}
	return &Factory{
		cfg: cfg,
		dialer: ws.Dialer{
			Timeout:   cfg.HandshakeTimeout,
			TLSConfig: cfg.TLSConfig,
		},
	}
}

// IsSupported implements transport.SocketFactory.
func (f *Factory) IsSupported() bool {
	return true
}

// NewSocket implements transport.SocketFactory.
func (f *Factory) NewSocket(url string, h transport.SocketHandler) (transport.Socket, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &socket{cfg: f.cfg, handler: h, cancel: cancel}
	go s.run(ctx, f.dialer, url)
	return s, nil
}

// lockedWriter serializes frame writes from Send and from the control
// frame replies wsutil sends on the read loop.
type lockedWriter struct {
	mu   *sync.Mutex
	conn net.Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Write(p)
}

type socket struct {
	cfg     Config
	handler transport.SocketHandler
	cancel  context.CancelFunc

	mu      sync.Mutex
	conn    net.Conn
	closing bool

	writeMu sync.Mutex
}

func (s *socket) run(ctx context.Context, dialer ws.Dialer, url string) {
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		if s.isClosing() {
			s.handler.OnClose(transport.CloseInfo{Code: int(ws.StatusNormalClosure), WasClean: true})
			return
		}
		s.handler.OnError(err)
		s.handler.OnClose(transport.CloseInfo{Code: int(ws.StatusAbnormalClosure), Reason: err.Error()})
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		s.handler.OnClose(transport.CloseInfo{Code: int(ws.StatusNormalClosure), WasClean: true})
		return
	}
	s.conn = conn
	s.mu.Unlock()

	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{r, lockedWriter{mu: &s.writeMu, conn: conn}}

	s.handler.OnOpen()

	for {
		data, _, err := wsutil.ReadServerData(rw)
		if err != nil {
			s.handler.OnClose(s.closeInfo(err))
			conn.Close()
			return
		}
		s.handler.OnMessage(data)
	}
}

func (s *socket) closeInfo(err error) transport.CloseInfo {
	var ce wsutil.ClosedError
	if errors.As(err, &ce) {
		return transport.CloseInfo{Code: int(ce.Code), Reason: ce.Reason, WasClean: true}
	}
	if s.isClosing() {
		return transport.CloseInfo{Code: int(ws.StatusNormalClosure), WasClean: true}
	}
	s.handler.OnError(err)
	return transport.CloseInfo{Code: int(ws.StatusAbnormalClosure), Reason: err.Error()}
}

func (s *socket) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Send writes a text frame.
func (s *socket) Send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return wsutil.WriteClientText(conn, data)
}

// Close sends a normal close frame and drops the connection after
// CloseGrace. A pending dial is canceled.
func (s *socket) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn == nil {
		return nil
	}

	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	err := wsutil.WriteClientMessage(conn, ws.OpClose, body)
	s.writeMu.Unlock()

	time.AfterFunc(s.cfg.CloseGrace, func() { conn.Close() })
	return err
}

var _ transport.SocketFactory = (*Factory)(nil)
