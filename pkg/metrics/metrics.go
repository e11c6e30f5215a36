// Package metrics exports connection lifecycle metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulse-realtime/pulse-go/pkg/connection"
	"github.com/pulse-realtime/pulse-go/pkg/strategy"
)

const namespace = "pulse"

var allStates = []connection.State{
	connection.StateInitialized,
	connection.StateConnecting,
	connection.StateConnected,
	connection.StateUnavailable,
	connection.StateDisconnected,
	connection.StateFailed,
}

// Collector holds the client metrics. A nil *Collector records nothing.
type Collector struct {
	state             *prometheus.GaugeVec   // 1 for the current state
	transitions       *prometheus.CounterVec // by from/to
	retries           prometheus.Counter
	retryDelay        prometheus.Histogram
	heartbeatTimeouts prometheus.Counter
	attempts          *prometheus.CounterVec   // by transport/outcome
	attemptLatency    *prometheus.HistogramVec // by transport
}

// New creates the collector and registers it with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current connection state (1 for the active state)",
		}, []string{"state"}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "transitions_total",
			Help:      "Connection state transitions",
		}, []string{"from", "to"}),

		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "retries_total",
			Help:      "Scheduled reconnection attempts",
		}),

		retryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "retry_delay_seconds",
			Help:      "Backoff delay before reconnection attempts",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 9),
		}),

		heartbeatTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "heartbeat_timeouts_total",
			Help:      "Connections declared dead after a missing pong",
		}),

		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "attempts_total",
			Help:      "Transport connection attempts by outcome",
		}, []string{"transport", "outcome"}),

		attemptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "attempt_duration_seconds",
			Help:      "Time from transport creation to open or failure",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),
	}

	for _, col := range []prometheus.Collector{
		c.state, c.transitions, c.retries, c.retryDelay,
		c.heartbeatTimeouts, c.attempts, c.attemptLatency,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	c.setState(connection.StateInitialized)
	return c, nil
}

// ObserveState implements connection.Metrics.
func (c *Collector) ObserveState(from, to connection.State) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
	c.setState(to)
}

// ObserveRetry implements connection.Metrics.
func (c *Collector) ObserveRetry(delay time.Duration) {
	if c == nil {
		return
	}
	c.retries.Inc()
	c.retryDelay.Observe(delay.Seconds())
}

// ObserveHeartbeatTimeout implements connection.Metrics.
func (c *Collector) ObserveHeartbeatTimeout() {
	if c == nil {
		return
	}
	c.heartbeatTimeouts.Inc()
}

// ObserveAttempt implements strategy.AttemptObserver.
func (c *Collector) ObserveAttempt(name string, outcome strategy.Outcome, latency time.Duration) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(name, outcome.String()).Inc()
	c.attemptLatency.WithLabelValues(name).Observe(latency.Seconds())
}

func (c *Collector) setState(current connection.State) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(s.String()).Set(v)
	}
}

var (
	_ connection.Metrics       = (*Collector)(nil)
	_ strategy.AttemptObserver = (*Collector)(nil)
)
