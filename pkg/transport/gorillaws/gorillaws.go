// Package gorillaws provides the "websocket" raw socket on top of
// github.com/gorilla/websocket.
package gorillaws

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// Name is the registry name of this transport.
const Name = "websocket"

// Defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultCloseGrace       = time.Second
	DefaultReadLimit        = 1 << 20
)

// ErrNotOpen is returned by Send before the socket is open.
var ErrNotOpen = errors.New("websocket not open")

// Config configures the dialer.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// CloseGrace is how long Close waits for the server's close frame
	// before dropping the connection.
	CloseGrace time.Duration

	// ReadLimit caps inbound frame size.
	ReadLimit int64

	TLSConfig *tls.Config
	Header    http.Header
}

// Factory creates gorilla/websocket sockets.
type Factory struct {
	cfg    Config
	dialer *websocket.Dialer
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
	if cfg.ReadLimit == 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	return &Factory{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  cfg.TLSConfig,
		},
	}
}

// IsSupported implements transport.SocketFactory.
func (f *Factory) IsSupported() bool {
	return true
}

// NewSocket implements transport.SocketFactory. Dialing happens on a new
// goroutine.
func (f *Factory) NewSocket(url string, h transport.SocketHandler) (transport.Socket, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &socket{
		cfg:     f.cfg,
		handler: h,
		cancel:  cancel,
	}
	go s.run(ctx, f.dialer, url)
	return s, nil
}

type socket struct {
	cfg     Config
	handler transport.SocketHandler
	cancel  context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	closing bool

	writeMu sync.Mutex
}

func (s *socket) run(ctx context.Context, dialer *websocket.Dialer, url string) {
	conn, _, err := dialer.DialContext(ctx, url, s.cfg.Header)
	if err != nil {
		if s.isClosing() {
			s.handler.OnClose(transport.CloseInfo{Code: websocket.CloseNormalClosure, WasClean: true})
			return
		}
		s.handler.OnError(err)
		s.handler.OnClose(transport.CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: err.Error()})
		return
	}
	conn.SetReadLimit(s.cfg.ReadLimit)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		s.handler.OnClose(transport.CloseInfo{Code: websocket.CloseNormalClosure, WasClean: true})
		return
	}
	s.conn = conn
	s.mu.Unlock()

	s.handler.OnOpen()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handler.OnClose(s.closeInfo(err))
			conn.Close()
			return
		}
		s.handler.OnMessage(data)
	}
}

func (s *socket) closeInfo(err error) transport.CloseInfo {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return transport.CloseInfo{Code: ce.Code, Reason: ce.Text, WasClean: true}
	}
	if s.isClosing() {
		return transport.CloseInfo{Code: websocket.CloseNormalClosure, WasClean: true}
	}
	s.handler.OnError(err)
	return transport.CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
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
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame and drops the connection if the server
// does not answer within CloseGrace. A pending dial is canceled.
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

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
	time.AfterFunc(s.cfg.CloseGrace, func() { conn.Close() })
	return err
}

var _ transport.SocketFactory = (*Factory)(nil)
