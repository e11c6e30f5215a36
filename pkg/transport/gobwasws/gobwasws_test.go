package gobwasws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

type handlerRecorder struct {
	mu       sync.Mutex
	opened   bool
	messages []string
	errors   int
	closes   []transport.CloseInfo
}

func (h *handlerRecorder) OnOpen() {
	h.mu.Lock()
	h.opened = true
	h.mu.Unlock()
}

func (h *handlerRecorder) OnMessage(data []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, string(data))
	h.mu.Unlock()
}

func (h *handlerRecorder) OnError(any) {
	h.mu.Lock()
	h.errors++
	h.mu.Unlock()
}

func (h *handlerRecorder) OnClose(info transport.CloseInfo) {
	h.mu.Lock()
	h.closes = append(h.closes, info)
	h.mu.Unlock()
}

func (h *handlerRecorder) messageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func (h *handlerRecorder) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.closes)
}

func echoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = wsutil.WriteServerText(conn, []byte("hello"))
		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			if string(data) == "bye" {
				body := ws.NewCloseFrameBody(4001, "app disabled")
				_ = wsutil.WriteServerMessage(conn, ws.OpClose, body)
				return
			}
			_ = wsutil.WriteServerMessage(conn, op, data)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/app/key"
}

func TestSocketEchoAndClose(t *testing.T) {
	h := &handlerRecorder{}
	s, err := NewFactory(Config{CloseGrace: 100 * time.Millisecond}).NewSocket(echoServer(t), h)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.messageCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Send([]byte("a")))
	require.NoError(t, s.Send([]byte("b")))
	require.Eventually(t, func() bool { return h.messageCount() == 3 }, 2*time.Second, 5*time.Millisecond)

	h.mu.Lock()
	assert.True(t, h.opened)
	assert.Equal(t, []string{"hello", "a", "b"}, h.messages)
	h.mu.Unlock()

	require.NoError(t, s.Close())
	require.Eventually(t, func() bool { return h.closeCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.True(t, h.closes[0].WasClean)
	assert.Equal(t, 1000, h.closes[0].Code)
}

func TestSocketServerRefuses(t *testing.T) {
	h := &handlerRecorder{}
	s, err := NewFactory(Config{}).NewSocket(echoServer(t), h)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.messageCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Send([]byte("bye")))
	require.Eventually(t, func() bool { return h.closeCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, 4001, h.closes[0].Code)
	assert.Equal(t, "app disabled", h.closes[0].Reason)
	assert.Zero(t, h.errors)
}

func TestSocketDialFailure(t *testing.T) {
	h := &handlerRecorder{}
	_, err := NewFactory(Config{HandshakeTimeout: time.Second}).NewSocket("ws://127.0.0.1:1/app/key", h)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.closeCount() == 1 }, 3*time.Second, 5*time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.False(t, h.opened)
	assert.Equal(t, 1, h.errors)
	assert.False(t, h.closes[0].WasClean)
}
