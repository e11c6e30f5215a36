package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/pulse-realtime/pulse-go/pkg/version"
)

func TestDefaultNeedsKey(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Len(t, multierr.Errors(err), 1)

	cfg.Key = "foo"
	assert.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
key: foo
host: example.com
port: 12345
tls_port: 54321
encrypted: false
protocol_version: 5
transports:
  - name: websocket-lite
  - name: websocket
    delay: 500ms
mode: sequential
timeout: 3s
cache:
  enabled: true
  file: /tmp/pulse-cache.yaml
  ttl: 10m
backoff:
  initial: 250ms
  max: 8s
  multiplier: 1.5
  jitter: 0.1
max_connect_attempts: 3
`))
	require.NoError(t, err)

	assert.Equal(t, "foo", cfg.Key)
	assert.Equal(t, "example.com", cfg.Host)
	assert.Equal(t, 12345, cfg.Port)
	assert.Equal(t, 54321, cfg.TLSPort)
	assert.False(t, cfg.Encrypted)
	assert.Equal(t, 5, cfg.ProtocolVersion)
	assert.Equal(t, []Transport{
		{Name: "websocket-lite"},
		{Name: "websocket", Delay: 500 * time.Millisecond},
	}, cfg.Transports)
	assert.Equal(t, ModeSequential, cfg.Mode)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "/tmp/pulse-cache.yaml", cfg.Cache.File)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Backoff.Initial)
	assert.Equal(t, 8*time.Second, cfg.Backoff.Max)
	assert.Equal(t, 1.5, cfg.Backoff.Multiplier)
	assert.Equal(t, 0.1, cfg.Backoff.Jitter)
	assert.Equal(t, 3, cfg.MaxConnectAttempts)

	// Untouched fields keep their defaults.
	assert.Equal(t, version.ClientIdentifier, cfg.ClientIdentifier)
	assert.Equal(t, 120*time.Second, cfg.ActivityTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("key: foo\nhots: example.com\n"))
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseReturnsIncomplete(t *testing.T) {
	cfg, err := Parse([]byte("host: gw.example.com\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, "gw.example.com", cfg.Host)

	cfg.Key = "app"
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"MissingHost", func(c *Config) { c.Host = "" }},
		{"PortRange", func(c *Config) { c.Port = 70000 }},
		{"TLSPortRange", func(c *Config) { c.TLSPort = 0 }},
		{"Protocol", func(c *Config) { c.ProtocolVersion = version.MinProtocol - 1 }},
		{"NoTransports", func(c *Config) { c.Transports = nil }},
		{"EmptyTransportName", func(c *Config) { c.Transports = []Transport{{}} }},
		{"DuplicateTransport", func(c *Config) {
			c.Transports = []Transport{{Name: "websocket"}, {Name: "websocket"}}
		}},
		{"NegativeDelay", func(c *Config) { c.Transports[0].Delay = -time.Second }},
		{"Mode", func(c *Config) { c.Mode = "parallel" }},
		{"NegativeTimeout", func(c *Config) { c.Timeout = -1 }},
		{"HandshakeTimeout", func(c *Config) { c.HandshakeTimeout = 0 }},
		{"Jitter", func(c *Config) { c.Backoff.Jitter = 2 }},
		{"BackoffMax", func(c *Config) { c.Backoff.Max = time.Millisecond }},
		{"Attempts", func(c *Config) { c.MaxConnectAttempts = 0 }},
		{"LogLevel", func(c *Config) { c.LogLevel = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Key = "foo"
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Port = -1
	cfg.Mode = "bogus"

	errs := multierr.Errors(cfg.Validate())
	assert.Len(t, errs, 3) // key, port, mode
}

func TestValidateDiscoverySuppliesEndpoint(t *testing.T) {
	cfg := Default()
	cfg.Host = ""
	cfg.Discovery.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg.Discovery.Service = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("key: bar\nencrypted: true\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bar", cfg.Key)
	assert.True(t, cfg.Encrypted)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
