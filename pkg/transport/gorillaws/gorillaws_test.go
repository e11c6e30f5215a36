package gorillaws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

type handlerRecorder struct {
	mu       sync.Mutex
	opened   bool
	messages []string
	errors   []any
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

func (h *handlerRecorder) OnError(err any) {
	h.mu.Lock()
	h.errors = append(h.errors, err)
	h.mu.Unlock()
}

func (h *handlerRecorder) OnClose(info transport.CloseInfo) {
	h.mu.Lock()
	h.closes = append(h.closes, info)
	h.mu.Unlock()
}

func (h *handlerRecorder) snapshot() (bool, []string, int, []transport.CloseInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened, append([]string(nil), h.messages...), len(h.errors), append([]transport.CloseInfo(nil), h.closes...)
}

// echoServer greets each client and echoes every text frame back.
func echoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello "+r.URL.Query().Get("client")))
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				msg := websocket.FormatCloseMessage(4201, "reconnect please")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			_ = conn.WriteMessage(typ, data)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/app/key?protocol=7&client=go&version=test"
}

func TestSocketOpenEchoClose(t *testing.T) {
	url := echoServer(t)
	h := &handlerRecorder{}

	s, err := NewFactory(Config{CloseGrace: 100 * time.Millisecond}).NewSocket(url, h)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		opened, msgs, _, _ := h.snapshot()
		return opened && len(msgs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, msgs, _, _ := h.snapshot()
	assert.Equal(t, "hello go", msgs[0])

	require.NoError(t, s.Send([]byte("ping-1")))
	require.NoError(t, s.Send([]byte("ping-2")))
	require.Eventually(t, func() bool {
		_, msgs, _, _ := h.snapshot()
		return len(msgs) == 3
	}, 2*time.Second, 5*time.Millisecond)
	_, msgs, _, _ = h.snapshot()
	assert.Equal(t, []string{"hello go", "ping-1", "ping-2"}, msgs)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Eventually(t, func() bool {
		_, _, _, closes := h.snapshot()
		return len(closes) == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, _, errs, closes := h.snapshot()
	assert.Zero(t, errs)
	assert.True(t, closes[0].WasClean)
	assert.Equal(t, websocket.CloseNormalClosure, closes[0].Code)
}

func TestSocketServerCloseCode(t *testing.T) {
	url := echoServer(t)
	h := &handlerRecorder{}

	s, err := NewFactory(Config{}).NewSocket(url, h)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		opened, _, _, _ := h.snapshot()
		return opened
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Send([]byte("bye")))
	require.Eventually(t, func() bool {
		_, _, _, closes := h.snapshot()
		return len(closes) == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, _, _, closes := h.snapshot()
	assert.Equal(t, 4201, closes[0].Code)
	assert.Equal(t, "reconnect please", closes[0].Reason)
}

func TestSocketDialFailure(t *testing.T) {
	h := &handlerRecorder{}
	_, err := NewFactory(Config{HandshakeTimeout: time.Second}).NewSocket("ws://127.0.0.1:1/app/key", h)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _, _, closes := h.snapshot()
		return len(closes) == 1
	}, 3*time.Second, 5*time.Millisecond)

	opened, _, errs, closes := h.snapshot()
	assert.False(t, opened)
	assert.Equal(t, 1, errs)
	assert.False(t, closes[0].WasClean)
	assert.Equal(t, websocket.CloseAbnormalClosure, closes[0].Code)
}

func TestSendBeforeOpen(t *testing.T) {
	s := &socket{}
	assert.ErrorIs(t, s.Send([]byte("x")), ErrNotOpen)
}
