// Package config loads client configuration from YAML.
//
// Durations are written as Go duration strings ("500ms", "2m"). Fields left
// out of the file keep the values of Default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/pulse-realtime/pulse-go/pkg/connection"
	"github.com/pulse-realtime/pulse-go/pkg/version"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Connection modes.
const (
	ModeRace       = "race"
	ModeSequential = "sequential"
)

// Config is the complete client configuration.
type Config struct {
	// Key is the application key.
	Key string `yaml:"key"`

	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	TLSPort   int    `yaml:"tls_port"`
	Encrypted bool   `yaml:"encrypted"`

	// ProtocolVersion, ClientIdentifier and ClientVersion are reported in
	// the connection URL.
	ProtocolVersion  int    `yaml:"protocol_version"`
	ClientIdentifier string `yaml:"client_identifier"`
	ClientVersion    string `yaml:"client_version"`

	// Transports lists the candidates in preference order.
	Transports []Transport `yaml:"transports"`

	// Mode is "race" or "sequential".
	Mode string `yaml:"mode"`

	// Timeout bounds each transport attempt.
	Timeout time.Duration `yaml:"timeout"`

	Cache Cache `yaml:"cache"`

	HandshakeTimeout   time.Duration            `yaml:"handshake_timeout"`
	ActivityTimeout    time.Duration            `yaml:"activity_timeout"`
	PongTimeout        time.Duration            `yaml:"pong_timeout"`
	Backoff            connection.BackoffConfig `yaml:"backoff"`
	MaxConnectAttempts int                      `yaml:"max_connect_attempts"`

	Discovery Discovery `yaml:"discovery"`

	// ProtocolLog is the path of the CBOR diagnostics file ("" = off).
	ProtocolLog string `yaml:"protocol_log"`

	// MetricsAddr serves /metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// Transport is one candidate transport.
type Transport struct {
	Name string `yaml:"name"`

	// Delay postpones the candidate in race mode.
	Delay time.Duration `yaml:"delay"`
}

// Cache configures the transport preference cache.
type Cache struct {
	Enabled bool `yaml:"enabled"`

	// File persists the cache across runs ("" = memory only).
	File string        `yaml:"file"`
	TTL  time.Duration `yaml:"ttl"`
}

// Discovery configures mDNS lookup of a LAN endpoint.
type Discovery struct {
	Enabled bool          `yaml:"enabled"`
	Service string        `yaml:"service"`
	Domain  string        `yaml:"domain"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a Config with sensible defaults and no key.
func Default() Config {
	return Config{
		Host:             "localhost",
		Port:             80,
		TLSPort:          443,
		Encrypted:        true,
		ProtocolVersion:  version.Protocol,
		ClientIdentifier: version.ClientIdentifier,
		ClientVersion:    version.Client,
		Transports: []Transport{
			{Name: "websocket"},
			{Name: "websocket-lite", Delay: 2 * time.Second},
		},
		Mode:    ModeRace,
		Timeout: 10 * time.Second,
		Cache: Cache{
			Enabled: true,
			TTL:     30 * time.Minute,
		},
		HandshakeTimeout:   connection.DefaultHandshakeTimeout,
		ActivityTimeout:    connection.DefaultActivityTimeout,
		PongTimeout:        connection.DefaultPongTimeout,
		Backoff:            connection.DefaultBackoffConfig(),
		MaxConnectAttempts: 1,
		Discovery: Discovery{
			Service: "_pulse._tcp",
			Domain:  "local.",
			Timeout: 3 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads path on top of Default and validates the result. Unknown
// fields are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result. A
// configuration that decodes but fails validation is returned together
// with the error, so callers may complete it and validate again.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate reports every problem in c. The returned error matches
// ErrInvalidConfig and can be split with multierr.Errors.
func (c *Config) Validate() error {
	var errs error
	invalid := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	// Discovery can supply the key and endpoint.
	if !c.Discovery.Enabled {
		if c.Key == "" {
			invalid("key is required")
		}
		if c.Host == "" {
			invalid("host is required")
		}
	}
	if !validPort(c.Port) {
		invalid("port %d out of range", c.Port)
	}
	if !validPort(c.TLSPort) {
		invalid("tls_port %d out of range", c.TLSPort)
	}
	if err := version.CheckProtocol(c.ProtocolVersion); err != nil {
		invalid("%v", err)
	}

	if len(c.Transports) == 0 {
		invalid("at least one transport is required")
	}
	seen := make(map[string]bool, len(c.Transports))
	for i, t := range c.Transports {
		switch {
		case t.Name == "":
			invalid("transports[%d]: name is required", i)
		case seen[t.Name]:
			invalid("transports[%d]: duplicate transport %q", i, t.Name)
		}
		seen[t.Name] = true
		if t.Delay < 0 {
			invalid("transports[%d]: negative delay", i)
		}
	}

	if c.Mode != ModeRace && c.Mode != ModeSequential {
		invalid("mode must be %q or %q, got %q", ModeRace, ModeSequential, c.Mode)
	}
	if c.Timeout < 0 {
		invalid("timeout must not be negative")
	}
	if c.Cache.TTL < 0 {
		invalid("cache.ttl must not be negative")
	}
	if c.HandshakeTimeout <= 0 {
		invalid("handshake_timeout must be positive")
	}
	if c.ActivityTimeout <= 0 {
		invalid("activity_timeout must be positive")
	}
	if c.PongTimeout <= 0 {
		invalid("pong_timeout must be positive")
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		invalid("backoff.jitter must be within [0, 1]")
	}
	if c.Backoff.Max > 0 && c.Backoff.Max < c.Backoff.Initial {
		invalid("backoff.max must not be below backoff.initial")
	}
	if c.MaxConnectAttempts < 1 {
		invalid("max_connect_attempts must be at least 1")
	}
	if c.Discovery.Enabled && c.Discovery.Service == "" {
		invalid("discovery.service is required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid("unknown log_level %q", c.LogLevel)
	}
	return errs
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
