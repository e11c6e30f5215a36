package client_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-realtime/pulse-go/internal/sockettest"
	"github.com/pulse-realtime/pulse-go/pkg/client"
	"github.com/pulse-realtime/pulse-go/pkg/config"
	"github.com/pulse-realtime/pulse-go/pkg/connection"
	"github.com/pulse-realtime/pulse-go/pkg/discovery"
	"github.com/pulse-realtime/pulse-go/pkg/log"
	"github.com/pulse-realtime/pulse-go/pkg/protocol"
	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

type fakeBrowser struct {
	endpoints []*discovery.Endpoint
	err       error
}

func (b *fakeBrowser) Browse(ctx context.Context) (<-chan *discovery.Endpoint, error) {
	if b.err != nil {
		return nil, b.err
	}
	ch := make(chan *discovery.Endpoint, len(b.endpoints))
	for _, ep := range b.endpoints {
		ch <- ep
	}
	close(ch)
	return ch, nil
}

func testRegistry(t *testing.T) (*transport.Registry, *sockettest.Factory) {
	t.Helper()
	f := sockettest.NewFactory()
	f.AutoClose = true

	r := transport.NewRegistry()
	require.NoError(t, r.Register("websocket", f))
	require.NoError(t, r.Register("websocket-lite", sockettest.NewFactory()))
	return r, f
}

func TestNewRequiresKey(t *testing.T) {
	registry, _ := testRegistry(t)
	_, err := client.New(context.Background(), client.Options{
		Config:   config.Default(),
		Registry: registry,
	})
	assert.ErrorIs(t, err, client.ErrNoKey)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Key = "app"
	cfg.Mode = "parallel"

	_, err := client.New(context.Background(), client.Options{Config: cfg})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestDefaultRegistry(t *testing.T) {
	r := client.DefaultRegistry()
	assert.True(t, r.IsSupported("websocket"))
	assert.True(t, r.IsSupported("websocket-lite"))
}

func TestConnect(t *testing.T) {
	registry, factory := testRegistry(t)
	reg := prometheus.NewRegistry()
	path := filepath.Join(t.TempDir(), "protocol.cbor")

	cfg := config.Default()
	cfg.Key = "app"
	cfg.Host = "gateway.local"
	cfg.Encrypted = false
	cfg.ProtocolLog = path

	rec := log.NewRecorder()
	c, err := client.New(context.Background(), client.Options{
		Config:      cfg,
		Registry:    registry,
		Registerer:  reg,
		Diagnostics: rec,
		Clock:       clock.NewMock(),
	})
	require.NoError(t, err)

	require.NoError(t, c.Connect())
	s := factory.Await(t, 1)
	assert.Contains(t, s.URL, "ws://gateway.local:80/app/app?")
	s.Open()

	frame, err := protocol.EncodeHandshake(protocol.Handshake{
		SocketID:        "1.2",
		ActivityTimeout: 30 * time.Second,
		PongTimeout:     10 * time.Second,
	})
	require.NoError(t, err)
	s.Message(frame)

	require.Eventually(t, func() bool { return c.State() == connection.StateConnected },
		2*time.Second, time.Millisecond)
	assert.Equal(t, "1.2", c.SocketID())
	assert.True(t, c.SendEvent("client-hello", map[string]string{"a": "b"}, "room"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	require.NoError(t, c.Close())
	assert.Equal(t, connection.StateDisconnected, c.State())
	assert.Contains(t, rec.States(), "connected")

	r, err := log.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var n int
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Positive(t, n)
}

func TestDiscovery(t *testing.T) {
	registry, _ := testRegistry(t)

	cfg := config.Default()
	cfg.Discovery.Enabled = true
	cfg.Discovery.Timeout = 100 * time.Millisecond

	c, err := client.New(context.Background(), client.Options{
		Config:   cfg,
		Registry: registry,
		Browser: &fakeBrowser{endpoints: []*discovery.Endpoint{{
			Instance:  "hall",
			Host:      "hall.local.",
			Port:      8080,
			Key:       "lan-key",
			Addresses: []string{"192.168.1.20"},
		}}},
		Clock: clock.NewMock(),
	})
	require.NoError(t, err)
	defer c.Close()

	got := c.Config()
	assert.Equal(t, "192.168.1.20", got.Host)
	assert.Equal(t, 8080, got.Port)
	assert.False(t, got.Encrypted)
	assert.Equal(t, "lan-key", got.Key)
	require.NotNil(t, c.Endpoint())
	assert.Equal(t, "hall", c.Endpoint().Instance)
}

func TestDiscoveryKeepsConfiguredKey(t *testing.T) {
	registry, _ := testRegistry(t)

	cfg := config.Default()
	cfg.Key = "mine"
	cfg.Discovery.Enabled = true

	c, err := client.New(context.Background(), client.Options{
		Config:   cfg,
		Registry: registry,
		Browser: &fakeBrowser{endpoints: []*discovery.Endpoint{{
			Host:    "hall.local.",
			Port:    80,
			TLSPort: 8443,
			Key:     "lan-key",
		}}},
		Clock: clock.NewMock(),
	})
	require.NoError(t, err)
	defer c.Close()

	got := c.Config()
	assert.Equal(t, "mine", got.Key)
	assert.True(t, got.Encrypted)
	assert.Equal(t, 8443, got.TLSPort)
}

func TestDiscoveryNotFound(t *testing.T) {
	cfg := config.Default()
	cfg.Discovery.Enabled = true
	cfg.Discovery.Timeout = 50 * time.Millisecond

	_, err := client.New(context.Background(), client.Options{
		Config:  cfg,
		Browser: &fakeBrowser{},
	})
	assert.ErrorIs(t, err, discovery.ErrNotFound)
}
