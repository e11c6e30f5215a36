// Command pulse-client connects to a realtime gateway and keeps the
// connection alive.
//
// Usage:
//
//	pulse-client [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-key string           Application key
//	-host string          Gateway host
//	-port int             Unencrypted port
//	-tls-port int         Encrypted port
//	-insecure             Use ws:// instead of wss://
//	-mode string          Transport strategy: race, sequential
//	-discover             Find the gateway with mDNS
//	-protocol-log string  Write protocol diagnostics to this file (CBOR)
//	-metrics-addr string  Serve Prometheus metrics on this address
//	-log-level string     Log level: debug, info, warn, error
//	-interactive          Enable the interactive console
//
// Flags override values from the configuration file.
//
// Examples:
//
//	# Connect to a local gateway without TLS
//	pulse-client -key app-key -host localhost -insecure -interactive
//
//	# Discover the gateway on the LAN and export metrics
//	pulse-client -discover -metrics-addr :9090
//
//	# Record a session for pulse-log
//	pulse-client -config client.yaml -protocol-log session.cbor
//
// Interactive Commands:
//
//	send <event> [channel] [json] - Send an event
//	state                         - Show connection state
//	disconnect                    - Close the connection
//	quit                          - Exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulse-realtime/pulse-go/pkg/client"
	"github.com/pulse-realtime/pulse-go/pkg/config"
	"github.com/pulse-realtime/pulse-go/pkg/connection"
	"github.com/pulse-realtime/pulse-go/pkg/protocol"
)

// flags holds the command-line values. Only flags the user set are
// applied on top of the configuration file.
type flags struct {
	ConfigFile  string
	Key         string
	Host        string
	Port        int
	TLSPort     int
	Insecure    bool
	Mode        string
	Discover    bool
	ProtocolLog string
	MetricsAddr string
	LogLevel    string
	Interactive bool
}

var opts flags

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.Key, "key", "", "Application key")
	flag.StringVar(&opts.Host, "host", "", "Gateway host")
	flag.IntVar(&opts.Port, "port", 0, "Unencrypted port")
	flag.IntVar(&opts.TLSPort, "tls-port", 0, "Encrypted port")
	flag.BoolVar(&opts.Insecure, "insecure", false, "Use ws:// instead of wss://")
	flag.StringVar(&opts.Mode, "mode", "", "Transport strategy: race, sequential")
	flag.BoolVar(&opts.Discover, "discover", false, "Find the gateway with mDNS")
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write protocol diagnostics to this file (CBOR)")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&opts.Interactive, "interactive", false, "Enable the interactive console")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var console *Console
	var out io.Writer = os.Stderr
	if opts.Interactive {
		console, err = NewConsole()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		out = console.Stderr()
	}
	logger := newLogger(out, cfg.LogLevel)

	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
	}

	copts := client.Options{Config: cfg, Logger: logger}
	if reg != nil {
		copts.Registerer = reg
	}
	c, err := client.New(ctx, copts)
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}

	if reg != nil {
		go serveMetrics(ctx, logger, cfg.MetricsAddr, reg)
	}

	c.OnStateChange(func(sc connection.StateChange) {
		attrs := []any{"from", sc.Previous, "to", sc.Current}
		if sc.Err != nil {
			attrs = append(attrs, "error", sc.Err)
		}
		logger.Info("state changed", attrs...)
		if sc.Current == connection.StateConnected {
			logger.Info("socket assigned", "socket_id", c.SocketID())
		}
	})
	c.OnMessage(func(m *protocol.Message) {
		logger.Info("message", "event", m.Event, "channel", m.Channel, "data", string(m.Data))
	})
	c.OnError(func(err error) {
		logger.Warn("connection error", "error", err)
	})

	if err := c.Connect(); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	if console != nil {
		go console.Run(ctx, cancel, c)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	cancel()
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "error", err)
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile)
		if err != nil && !errors.Is(err, config.ErrInvalidConfig) {
			return cfg, err
		}
		// Validation runs again once flags are applied.
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "key":
			cfg.Key = opts.Key
		case "host":
			cfg.Host = opts.Host
		case "port":
			cfg.Port = opts.Port
		case "tls-port":
			cfg.TLSPort = opts.TLSPort
		case "insecure":
			cfg.Encrypted = !opts.Insecure
		case "mode":
			cfg.Mode = opts.Mode
		case "discover":
			cfg.Discovery.Enabled = opts.Discover
		case "protocol-log":
			cfg.ProtocolLog = opts.ProtocolLog
		case "metrics-addr":
			cfg.MetricsAddr = opts.MetricsAddr
		case "log-level":
			cfg.LogLevel = opts.LogLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
