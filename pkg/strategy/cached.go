package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// DefaultMinCachedTimeout is the floor for the cached candidate's timeout.
const DefaultMinCachedTimeout = time.Second

// CachedConfig configures a Cached strategy.
type CachedConfig struct {
	// Key separates preferences, e.g. per host and encryption.
	Key string

	Store CacheStore

	// TTL is how long an entry is trusted (default: DefaultCacheTTL).
	TTL time.Duration

	// MinTimeout is the floor for the cached attempt's timeout
	// (default: DefaultMinCachedTimeout).
	MinTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Cached tries the previous winner first and falls back to the full
// strategy.
type Cached struct {
	inner      Strategy
	candidates map[string]Strategy
	cfg        CachedConfig
}

// NewCached wraps inner. Candidates are the leaf strategies a cache entry
// may name, keyed by their Name.
func NewCached(inner Strategy, candidates []Strategy, cfg CachedConfig) *Cached {
	if cfg.Store == nil {
		cfg.Store = NewMemoryCache()
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.MinTimeout == 0 {
		cfg.MinTimeout = DefaultMinCachedTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	m := make(map[string]Strategy, len(candidates))
	for _, c := range candidates {
		m[c.Name()] = c
	}
	return &Cached{inner: inner, candidates: m, cfg: cfg}
}

// Name returns the inner strategy's name.
func (c *Cached) Name() string {
	return c.inner.Name()
}

// IsSupported returns the inner strategy's support.
func (c *Cached) IsSupported() bool {
	return c.inner.IsSupported()
}

// Connect tries a fresh cached winner with a timeout of twice its recorded
// latency, then the full strategy. The winner of either path is recorded;
// a failing full run clears the entry.
func (c *Cached) Connect(ctx context.Context) (*transport.Transport, error) {
	if tr, ok := c.tryCached(ctx); ok {
		return tr, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	start := c.cfg.Clock.Now()
	tr, err := c.inner.Connect(ctx)
	if err != nil {
		if derr := c.cfg.Store.Delete(c.cfg.Key); derr != nil {
			c.cfg.Logger.Warn("transport cache delete failed", slog.Any("error", derr))
		}
		return nil, err
	}
	c.record(tr.Label(), c.cfg.Clock.Since(start))
	return tr, nil
}

func (c *Cached) tryCached(ctx context.Context) (*transport.Transport, bool) {
	entry, ok := c.cfg.Store.Load(c.cfg.Key)
	if !ok || c.cfg.Clock.Since(entry.Timestamp) >= c.cfg.TTL {
		return nil, false
	}
	candidate, ok := c.candidates[entry.Transport]
	if !ok || !candidate.IsSupported() {
		return nil, false
	}

	timeout := 2 * entry.Latency
	if timeout < c.cfg.MinTimeout {
		timeout = c.cfg.MinTimeout
	}
	cctx, cancel := c.cfg.Clock.WithTimeout(ctx, timeout)
	defer cancel()

	start := c.cfg.Clock.Now()
	tr, err := candidate.Connect(cctx)
	if err != nil {
		c.cfg.Logger.Debug("cached transport failed, falling back",
			slog.String("transport", entry.Transport), slog.Any("error", err))
		return nil, false
	}
	c.record(entry.Transport, c.cfg.Clock.Since(start))
	return tr, true
}

func (c *Cached) record(name string, latency time.Duration) {
	err := c.cfg.Store.Store(c.cfg.Key, CacheEntry{
		Transport: name,
		Latency:   latency,
		Timestamp: c.cfg.Clock.Now(),
	})
	if err != nil {
		c.cfg.Logger.Warn("transport cache write failed", slog.Any("error", err))
	}
}

var _ Strategy = (*Cached)(nil)
