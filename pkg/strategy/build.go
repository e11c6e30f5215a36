package strategy

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

// Mode selects how candidates are combined.
type Mode string

const (
	// ModeRace starts candidates concurrently, each after its delay.
	ModeRace Mode = "race"

	// ModeSequential tries candidates in order.
	ModeSequential Mode = "sequential"
)

// Candidate is one transport in the default tree.
type Candidate struct {
	// Name is the registry name.
	Name string

	// Delay postpones the candidate in a race.
	Delay time.Duration
}

// Spec describes the default strategy tree.
type Spec struct {
	Registry   *transport.Registry
	Options    transport.Options
	Candidates []Candidate
	Mode       Mode

	// Timeout bounds each candidate's attempt (zero: unbounded).
	Timeout time.Duration

	// Cache enables the cached-preference wrapper when set.
	Cache    CacheStore
	CacheTTL time.Duration

	Observer AttemptObserver
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Build composes the strategy described by spec.
//
// Race mode yields Race(Delayed(Sequential(timeout, leaf), delay)...);
// sequential mode yields Sequential(timeout, leaf...). With a cache the
// tree is wrapped in Cached, keyed by host, port and encryption.
func Build(spec Spec) (Strategy, error) {
	if spec.Registry == nil {
		return nil, fmt.Errorf("strategy: registry required")
	}
	if len(spec.Candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if spec.Clock == nil {
		spec.Clock = clock.New()
	}

	leaves := make([]Strategy, 0, len(spec.Candidates))
	for _, c := range spec.Candidates {
		if _, ok := spec.Registry.Lookup(c.Name); !ok {
			return nil, fmt.Errorf("%w: %s", transport.ErrUnknownTransport, c.Name)
		}
		leaves = append(leaves, NewTransport(TransportConfig{
			Name:     c.Name,
			Registry: spec.Registry,
			Options:  spec.Options,
			Observer: spec.Observer,
			Clock:    spec.Clock,
		}))
	}

	var root Strategy
	switch spec.Mode {
	case ModeRace, "":
		children := make([]Strategy, len(leaves))
		for i, leaf := range leaves {
			var child Strategy = NewSequential(leaf.Name(), spec.Timeout, spec.Clock, leaf)
			if d := spec.Candidates[i].Delay; d > 0 {
				child = NewDelayed(child, d, spec.Clock)
			}
			children[i] = child
		}
		root = NewRace("race", children...)
	case ModeSequential:
		root = NewSequential("sequential", spec.Timeout, spec.Clock, leaves...)
	default:
		return nil, fmt.Errorf("strategy: unknown mode %q", spec.Mode)
	}

	if spec.Cache != nil {
		root = NewCached(root, leaves, CachedConfig{
			Key:    CacheKey(spec.Options),
			Store:  spec.Cache,
			TTL:    spec.CacheTTL,
			Clock:  spec.Clock,
			Logger: spec.Logger,
		})
	}
	return root, nil
}

// CacheKey returns the cache key for a set of transport options.
func CacheKey(o transport.Options) string {
	port := o.UnencryptedPort
	scheme := "ws"
	if o.Encrypted {
		port = o.EncryptedPort
		scheme = "wss"
	}
	return scheme + "://" + o.Host + ":" + strconv.Itoa(port)
}
