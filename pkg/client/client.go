// Package client assembles a realtime connection from configuration.
//
// New wires the transport registry, the strategy tree, the preference
// cache, diagnostics sinks, metrics and optional mDNS discovery into a
// connection.Manager.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulse-realtime/pulse-go/pkg/config"
	"github.com/pulse-realtime/pulse-go/pkg/connection"
	"github.com/pulse-realtime/pulse-go/pkg/discovery"
	"github.com/pulse-realtime/pulse-go/pkg/log"
	"github.com/pulse-realtime/pulse-go/pkg/metrics"
	"github.com/pulse-realtime/pulse-go/pkg/protocol"
	"github.com/pulse-realtime/pulse-go/pkg/strategy"
	"github.com/pulse-realtime/pulse-go/pkg/transport"
	"github.com/pulse-realtime/pulse-go/pkg/transport/gobwasws"
	"github.com/pulse-realtime/pulse-go/pkg/transport/gorillaws"
)

// ErrNoKey is returned when neither the configuration nor discovery
// provided an application key.
var ErrNoKey = errors.New("no application key")

// Options configures New. Only Config is required.
type Options struct {
	Config config.Config

	// Logger receives operational logs (nil = discard).
	Logger *slog.Logger

	// Diagnostics receives protocol records in addition to the file named
	// by Config.ProtocolLog.
	Diagnostics log.Logger

	// Registerer enables Prometheus metrics.
	Registerer prometheus.Registerer

	// Registry replaces the default transport registry.
	Registry *transport.Registry

	// Browser replaces the mDNS browser used when discovery is enabled.
	Browser discovery.Browser

	Clock clock.Clock
}

// Client is a configured connection with its resources.
type Client struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *transport.Registry
	manager  *connection.Manager
	metrics  *metrics.Collector
	fileLog  *log.FileLogger
	endpoint *discovery.Endpoint
}

// DefaultRegistry returns a registry with both socket stacks.
func DefaultRegistry() *transport.Registry {
	r := transport.NewRegistry()
	_ = r.Register(gorillaws.Name, gorillaws.NewFactory(gorillaws.Config{}))
	_ = r.Register(gobwasws.Name, gobwasws.NewFactory(gobwasws.Config{}))
	return r
}

// New builds a Client. With discovery enabled it blocks until a gateway
// is found or the discovery timeout expires.
func New(ctx context.Context, opts Options) (*Client, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	c := &Client{cfg: cfg, logger: logger}

	if cfg.Discovery.Enabled {
		ep, err := c.discover(ctx, opts.Browser)
		if err != nil {
			return nil, err
		}
		c.endpoint = ep
	}
	if c.cfg.Key == "" {
		return nil, ErrNoKey
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	c.registry = opts.Registry
	if c.registry == nil {
		c.registry = DefaultRegistry()
	}

	if opts.Registerer != nil {
		m, err := metrics.New(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		c.metrics = m
	}

	sinks := []log.Logger{opts.Diagnostics}
	if c.cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(c.cfg.ProtocolLog)
		if err != nil {
			return nil, fmt.Errorf("open protocol log: %w", err)
		}
		c.fileLog = fl
		sinks = append(sinks, fl)
	}
	diag := log.NewMultiLogger(sinks...)

	root, err := c.buildStrategy(diag, opts.Clock)
	if err != nil {
		c.closeLog()
		return nil, err
	}

	var mm connection.Metrics
	if c.metrics != nil {
		mm = c.metrics
	}
	c.manager, err = connection.NewManager(connection.Config{
		Strategy:           root,
		Clock:              opts.Clock,
		Backoff:            c.cfg.Backoff,
		HandshakeTimeout:   c.cfg.HandshakeTimeout,
		ActivityTimeout:    c.cfg.ActivityTimeout,
		PongTimeout:        c.cfg.PongTimeout,
		MaxConnectAttempts: c.cfg.MaxConnectAttempts,
		Diagnostics:        diag,
		Logger:             logger,
		Metrics:            mm,
	})
	if err != nil {
		c.closeLog()
		return nil, err
	}
	return c, nil
}

func (c *Client) discover(ctx context.Context, b discovery.Browser) (*discovery.Endpoint, error) {
	d := c.cfg.Discovery
	if b == nil {
		b = discovery.NewMDNSBrowser(discovery.BrowserConfig{
			Service: d.Service,
			Domain:  d.Domain,
			Logger:  c.logger,
		})
	}

	ep, err := discovery.Find(ctx, b, d.Timeout)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", d.Service, err)
	}
	c.logger.Info("discovered gateway", "endpoint", ep.String(), "tls", ep.SupportsTLS())

	c.cfg.Host = ep.Dial()
	if ep.Port > 0 {
		c.cfg.Port = ep.Port
	}
	if ep.SupportsTLS() {
		c.cfg.TLSPort = ep.TLSPort
	} else {
		c.cfg.Encrypted = false
	}
	if c.cfg.Key == "" {
		c.cfg.Key = ep.Key
	}
	return ep, nil
}

func (c *Client) buildStrategy(diag log.Logger, clk clock.Clock) (strategy.Strategy, error) {
	candidates := make([]strategy.Candidate, len(c.cfg.Transports))
	for i, t := range c.cfg.Transports {
		candidates[i] = strategy.Candidate{Name: t.Name, Delay: t.Delay}
	}

	spec := strategy.Spec{
		Registry:   c.registry,
		Options:    c.TransportOptions(diag),
		Candidates: candidates,
		Mode:       strategy.Mode(c.cfg.Mode),
		Timeout:    c.cfg.Timeout,
		Clock:      clk,
		Logger:     c.logger,
	}
	if c.metrics != nil {
		spec.Observer = c.metrics
	}

	if c.cfg.Cache.Enabled {
		spec.CacheTTL = c.cfg.Cache.TTL
		if c.cfg.Cache.File == "" {
			spec.Cache = strategy.NewMemoryCache()
		} else {
			fc, err := strategy.OpenFileCache(c.cfg.Cache.File)
			if err != nil {
				return nil, fmt.Errorf("open transport cache: %w", err)
			}
			spec.Cache = fc
		}
	}

	return strategy.Build(spec)
}

// TransportOptions returns the transport options derived from the
// configuration.
func (c *Client) TransportOptions(diag log.Logger) transport.Options {
	return transport.Options{
		Key:              c.cfg.Key,
		Host:             c.cfg.Host,
		UnencryptedPort:  c.cfg.Port,
		EncryptedPort:    c.cfg.TLSPort,
		Encrypted:        c.cfg.Encrypted,
		ProtocolVersion:  c.cfg.ProtocolVersion,
		ClientIdentifier: c.cfg.ClientIdentifier,
		ClientVersion:    c.cfg.ClientVersion,
		Diagnostics:      diag,
	}
}

// Config returns the effective configuration, after discovery.
func (c *Client) Config() config.Config {
	return c.cfg
}

// Endpoint returns the discovered gateway, or nil.
func (c *Client) Endpoint() *discovery.Endpoint {
	return c.endpoint
}

// Manager returns the underlying connection manager.
func (c *Client) Manager() *connection.Manager {
	return c.manager
}

// Connect starts connecting. See connection.Manager.Connect.
func (c *Client) Connect() error {
	return c.manager.Connect()
}

// Disconnect closes the connection for good.
func (c *Client) Disconnect() {
	c.manager.Disconnect()
}

// Send writes a raw frame.
func (c *Client) Send(data []byte) bool {
	return c.manager.Send(data)
}

// SendEvent encodes and sends an event.
func (c *Client) SendEvent(name string, data any, channel string) bool {
	return c.manager.SendEvent(name, data, channel)
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// SocketID returns the server-assigned socket id.
func (c *Client) SocketID() string {
	return c.manager.SocketID()
}

// OnStateChange registers a state listener.
func (c *Client) OnStateChange(fn func(connection.StateChange)) (unbind func()) {
	return c.manager.OnStateChange(fn)
}

// OnMessage registers a message listener.
func (c *Client) OnMessage(fn func(*protocol.Message)) (unbind func()) {
	return c.manager.OnMessage(fn)
}

// OnError registers an error listener.
func (c *Client) OnError(fn func(error)) (unbind func()) {
	return c.manager.OnError(fn)
}

// Close disconnects and releases the protocol log. The connection cannot
// be reopened afterwards.
func (c *Client) Close() error {
	c.manager.Disconnect()
	return c.closeLog()
}

func (c *Client) closeLog() error {
	if c.fileLog == nil {
		return nil
	}
	return c.fileLog.Close()
}
