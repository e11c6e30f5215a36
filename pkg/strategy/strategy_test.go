package strategy_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-realtime/pulse-go/internal/sockettest"
	"github.com/pulse-realtime/pulse-go/pkg/strategy"
	"github.com/pulse-realtime/pulse-go/pkg/transport"
)

type attempt struct {
	name    string
	outcome strategy.Outcome
}

type observer struct {
	mu       sync.Mutex
	attempts []attempt
}

func (o *observer) ObserveAttempt(name string, outcome strategy.Outcome, _ time.Duration) {
	o.mu.Lock()
	o.attempts = append(o.attempts, attempt{name, outcome})
	o.mu.Unlock()
}

func (o *observer) all() []attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]attempt(nil), o.attempts...)
}

type fixture struct {
	registry  *transport.Registry
	factories map[string]*sockettest.Factory
	observer  *observer
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	f := &fixture{
		registry:  transport.NewRegistry(),
		factories: make(map[string]*sockettest.Factory),
		observer:  &observer{},
	}
	for _, name := range names {
		fac := sockettest.NewFactory()
		fac.AutoClose = true
		require.NoError(t, f.registry.Register(name, fac))
		f.factories[name] = fac
	}
	return f
}

func (f *fixture) leaf(name string) *strategy.TransportStrategy {
	return strategy.NewTransport(strategy.TransportConfig{
		Name:     name,
		Registry: f.registry,
		Options:  transport.Options{Key: "foo", Host: "example.com", UnencryptedPort: 80},
		Observer: f.observer,
	})
}

type connectResult struct {
	tr  *transport.Transport
	err error
}

func connectAsync(ctx context.Context, s strategy.Strategy) <-chan connectResult {
	ch := make(chan connectResult, 1)
	go func() {
		tr, err := s.Connect(ctx)
		ch <- connectResult{tr, err}
	}()
	return ch
}

func wait(t *testing.T, ch <-chan connectResult) connectResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("strategy did not finish")
		return connectResult{}
	}
}

func TestTransportStrategyOpenHoldsEvents(t *testing.T) {
	f := newFixture(t, "ws")
	ch := connectAsync(context.Background(), f.leaf("ws"))

	socket := f.factories["ws"].Await(t, 1)
	socket.Open()
	socket.Message([]byte("handshake"))

	r := wait(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, transport.StateOpen, r.tr.State())

	var got []transport.Event
	r.tr.Bind(func(e transport.Event) { got = append(got, e) })
	require.Empty(t, got)

	r.tr.ReleaseEvents()
	require.Len(t, got, 1)
	assert.Equal(t, []byte("handshake"), got[0].Data)

	assert.Equal(t, []attempt{{"ws", strategy.OutcomeOpen}}, f.observer.all())
}

func TestTransportStrategyFailure(t *testing.T) {
	f := newFixture(t, "ws")
	ch := connectAsync(context.Background(), f.leaf("ws"))

	socket := f.factories["ws"].Await(t, 1)
	socket.Error("We're doomed")
	socket.Closed(transport.CloseInfo{Code: 1006})

	r := wait(t, ch)
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, strategy.ErrTransportClosed)
	assert.Contains(t, r.err.Error(), "We're doomed")

	var ce *strategy.CandidateError
	require.ErrorAs(t, r.err, &ce)
	assert.Equal(t, "ws", ce.Name)
	assert.Equal(t, []attempt{{"ws", strategy.OutcomeFailed}}, f.observer.all())
}

func TestTransportStrategyUnsupported(t *testing.T) {
	f := newFixture(t, "ws")
	f.factories["ws"].Unsupported = true

	leaf := f.leaf("ws")
	assert.False(t, leaf.IsSupported())
	_, err := leaf.Connect(context.Background())
	assert.ErrorIs(t, err, strategy.ErrUnsupported)
	assert.Zero(t, f.factories["ws"].Count())
}

func TestTransportStrategyCancelClosesTransport(t *testing.T) {
	f := newFixture(t, "ws")
	ctx, cancel := context.WithCancel(context.Background())
	ch := connectAsync(ctx, f.leaf("ws"))

	socket := f.factories["ws"].Await(t, 1)
	cancel()

	r := wait(t, ch)
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Equal(t, 1, socket.CloseCalls())
	assert.Equal(t, []attempt{{"ws", strategy.OutcomeCanceled}}, f.observer.all())
}

func TestEncryptedLeafName(t *testing.T) {
	f := newFixture(t, "ws")
	leaf := strategy.NewTransport(strategy.TransportConfig{
		Name:     "ws",
		Registry: f.registry,
		Options:  transport.Options{Encrypted: true},
	})
	assert.Equal(t, "wss", leaf.Name())
}

func TestSequentialFallsBack(t *testing.T) {
	f := newFixture(t, "a", "b")
	seq := strategy.NewSequential("seq", 0, nil, f.leaf("a"), f.leaf("b"))
	ch := connectAsync(context.Background(), seq)

	a := f.factories["a"].Await(t, 1)
	assert.Zero(t, f.factories["b"].Count(), "b must wait for a")
	a.Closed(transport.CloseInfo{Code: 1006})

	f.factories["b"].Await(t, 1).Open()

	r := wait(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, "b", r.tr.Name())
}

func TestSequentialTimeout(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.factories["b"].OpenAfter = time.Millisecond

	seq := strategy.NewSequential("seq", 20*time.Millisecond, clock.New(), f.leaf("a"), f.leaf("b"))
	r := wait(t, connectAsync(context.Background(), seq))
	require.NoError(t, r.err)
	assert.Equal(t, "b", r.tr.Name())

	assert.Equal(t, 1, f.factories["a"].Last().CloseCalls(), "timed out candidate is closed")
	assert.Contains(t, f.observer.all(), attempt{"a", strategy.OutcomeTimeout})
}

func TestSequentialExhausted(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	f.factories["a"].Err = errors.New("dial refused")
	f.factories["b"].Err = errors.New("dial refused")
	f.factories["c"].Unsupported = true

	seq := strategy.NewSequential("seq", 0, nil, f.leaf("a"), f.leaf("b"), f.leaf("c"))
	assert.True(t, seq.IsSupported())

	_, err := seq.Connect(context.Background())
	var ex *strategy.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Len(t, ex.Errors(), 3)
	assert.ErrorIs(t, err, strategy.ErrTransportClosed)
	assert.ErrorIs(t, err, strategy.ErrUnsupported)
	assert.Contains(t, err.Error(), "seq: all transports failed")
}

func TestSequentialNothingSupported(t *testing.T) {
	f := newFixture(t, "a")
	f.factories["a"].Unsupported = true
	assert.False(t, strategy.NewSequential("seq", 0, nil, f.leaf("a")).IsSupported())
}

func TestRaceFirstOpenWins(t *testing.T) {
	f := newFixture(t, "fast", "slow")
	f.factories["fast"].OpenAfter = 10 * time.Millisecond
	f.factories["slow"].OpenAfter = 50 * time.Millisecond

	race := strategy.NewRace("race", f.leaf("fast"), f.leaf("slow"))
	r := wait(t, connectAsync(context.Background(), race))
	require.NoError(t, r.err)
	assert.Equal(t, "fast", r.tr.Name())
	assert.Equal(t, transport.StateOpen, r.tr.State())

	slow := f.factories["slow"].Await(t, 1)
	require.Eventually(t, func() bool { return slow.CloseCalls() == 1 }, time.Second, time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	assert.False(t, slow.WasOpened(), "loser must never open")
	assert.Equal(t, transport.StateOpen, r.tr.State(), "winner stays open")
	assert.Contains(t, f.observer.all(), attempt{"slow", strategy.OutcomeCanceled})
}

func TestRaceAllFail(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.factories["a"].Err = errors.New("no")
	f.factories["b"].Unsupported = true

	_, err := strategy.NewRace("race", f.leaf("a"), f.leaf("b")).Connect(context.Background())
	var ex *strategy.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "race", ex.Strategy)
	assert.Len(t, ex.Errors(), 2)
}

func TestRaceCanceled(t *testing.T) {
	f := newFixture(t, "a")
	ctx, cancel := context.WithCancel(context.Background())
	ch := connectAsync(ctx, strategy.NewRace("race", f.leaf("a")))
	f.factories["a"].Await(t, 1)
	cancel()

	r := wait(t, ch)
	assert.ErrorIs(t, r.err, context.Canceled)
}

func TestDelayed(t *testing.T) {
	f := newFixture(t, "a")
	mock := clock.NewMock()
	d := strategy.NewDelayed(f.leaf("a"), time.Second, mock)
	assert.Equal(t, "a", d.Name())

	ctx, cancel := context.WithCancel(context.Background())
	ch := connectAsync(ctx, d)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, f.factories["a"].Count(), "child must not start before the delay")

	cancel()
	r := wait(t, ch)
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Zero(t, f.factories["a"].Count())
}

func TestDelayedStartsAfterDelay(t *testing.T) {
	f := newFixture(t, "a")
	f.factories["a"].OpenAfter = time.Millisecond
	mock := clock.NewMock()

	ch := connectAsync(context.Background(), strategy.NewDelayed(f.leaf("a"), time.Second, mock))
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return f.factories["a"].Count() == 1
	}, time.Second, 5*time.Millisecond)

	r := wait(t, ch)
	require.NoError(t, r.err)
}
