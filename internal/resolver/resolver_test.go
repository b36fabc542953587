package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/endpointresolver/internal/cache"
	"github.com/hamed0406/endpointresolver/internal/candidates"
	"github.com/hamed0406/endpointresolver/internal/domain"
	"github.com/hamed0406/endpointresolver/internal/platform"
	"github.com/hamed0406/endpointresolver/internal/repo"
	"github.com/hamed0406/endpointresolver/internal/repo/memory"
)

const (
	lanURL       = "http://192.168.1.50:8081"
	localhostURL = "http://localhost:8081"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type outcome struct {
	ok      bool
	latency time.Duration
}

// fakeProber answers from a per-URL script; unknown URLs time out.
type fakeProber struct {
	mu     sync.Mutex
	script map[string]outcome
	calls  map[string]int
	total  int

	// gate, when set, blocks every probe until it is closed.
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func newFakeProber(script map[string]outcome) *fakeProber {
	return &fakeProber{script: script, calls: map[string]int{}}
}

func (f *fakeProber) Probe(ctx context.Context, c domain.Candidate, timeout time.Duration) domain.ProbeResult {
	f.mu.Lock()
	f.calls[c.URL]++
	f.total++
	o, ok := f.script[c.URL]
	gate := f.gate
	f.mu.Unlock()

	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if gate != nil {
		<-gate
	}

	res := domain.ProbeResult{Candidate: c, CheckedAt: time.Now()}
	if ok && o.ok {
		res.Success = true
		res.StatusCode = 200
		res.Latency = o.latency
		res.LatencyMS = float64(o.latency.Milliseconds())
		return res
	}
	res.Reason = domain.ReasonTimeout
	return res
}

func (f *fakeProber) set(url string, o outcome) {
	f.mu.Lock()
	f.script[url] = o
	f.mu.Unlock()
}

func (f *fakeProber) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

type fixture struct {
	r      *Resolver
	prober *fakeProber
	clock  *fakeClock
	store  repo.KVStore
}

func newFixture(t *testing.T, p platform.Provider, prober *fakeProber, store repo.KVStore) *fixture {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	if store == nil {
		store = memory.New()
	}
	c := cache.New(store, cache.Options{TTL: 5 * time.Minute, Now: clk.Now})
	r := New(Options{
		Candidates: candidates.NewBuilder(p, nil, nil),
		Inputs: func() candidates.Input {
			return candidates.Input{Mode: domain.ModeLocal, LANIP: "192.168.1.50", Port: 8081}
		},
		Prober:   prober,
		Cache:    c,
		Platform: p,
		Cooldown: 10 * time.Second,
		Now:      clk.Now,
	})
	return &fixture{r: r, prober: prober, clock: clk, store: store}
}

func TestResolve_LowestLatencyWins(t *testing.T) {
	p := newFakeProber(map[string]outcome{
		localhostURL: {ok: true, latency: 10 * time.Millisecond},
		lanURL:       {ok: true, latency: 50 * time.Millisecond},
	})
	f := newFixture(t, platform.Web{}, p, nil)

	got := f.r.Resolve(context.Background(), ResolveOptions{})
	assert.Equal(t, localhostURL, got)

	cur, ok := f.r.CurrentEndpoint()
	require.True(t, ok)
	assert.Equal(t, localhostURL, cur)

	raw, ok, err := f.store.GetItem(context.Background(), cache.DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, localhostURL)
}

func TestResolve_TimeoutLosesToSlowerSuccess(t *testing.T) {
	p := newFakeProber(map[string]outcome{
		lanURL: {ok: true, latency: 50 * time.Millisecond},
	})
	f := newFixture(t, platform.Web{}, p, nil)

	assert.Equal(t, lanURL, f.r.Resolve(context.Background(), ResolveOptions{}))
}

func TestResolve_AndroidAllFailFallsBack(t *testing.T) {
	p := newFakeProber(map[string]outcome{})
	f := newFixture(t, platform.Android{}, p, nil)

	got := f.r.Resolve(context.Background(), ResolveOptions{})
	assert.Equal(t, "http://10.0.2.2:8081", got)

	_, ok := f.r.CurrentEndpoint()
	assert.False(t, ok, "fallback must not become the working endpoint")
	_, ok, _ = f.store.GetItem(context.Background(), cache.DefaultKey)
	assert.False(t, ok, "fallback must not be cached")
}

func TestResolve_SetEndpointSkipsProbing(t *testing.T) {
	p := newFakeProber(map[string]outcome{})
	f := newFixture(t, platform.Web{}, p, nil)
	ctx := context.Background()

	require.NoError(t, f.r.SetEndpoint(ctx, "http://custom:9999"))
	assert.Equal(t, "http://custom:9999", f.r.Resolve(ctx, ResolveOptions{}))
	assert.Equal(t, 0, p.Total())
}

func TestSetEndpoint_RejectsMalformed(t *testing.T) {
	f := newFixture(t, platform.Web{}, newFakeProber(nil), nil)

	err := f.r.SetEndpoint(context.Background(), "not a url")
	assert.ErrorIs(t, err, domain.ErrInvalidURL)
	_, ok := f.r.CurrentEndpoint()
	assert.False(t, ok)
}

func TestResolve_SecondCallUsesMemory(t *testing.T) {
	p := newFakeProber(map[string]outcome{localhostURL: {ok: true, latency: time.Millisecond}})
	f := newFixture(t, platform.Web{}, p, nil)
	ctx := context.Background()

	first := f.r.Resolve(ctx, ResolveOptions{})
	probes := p.Total()
	second := f.r.Resolve(ctx, ResolveOptions{})

	assert.Equal(t, first, second)
	assert.Equal(t, probes, p.Total())
}

func TestResolve_ForceRefreshProbesAgain(t *testing.T) {
	p := newFakeProber(map[string]outcome{localhostURL: {ok: true, latency: time.Millisecond}})
	f := newFixture(t, platform.Web{}, p, nil)
	ctx := context.Background()

	f.r.Resolve(ctx, ResolveOptions{})
	probes := p.Total()

	p.set(lanURL, outcome{ok: true, latency: 0})
	got := f.r.Resolve(ctx, ResolveOptions{ForceRefresh: true})
	assert.Equal(t, lanURL, got)
	assert.Equal(t, 2*probes, p.Total())
}

func TestResolve_ConcurrentCallsShareOneResolution(t *testing.T) {
	p := newFakeProber(map[string]outcome{localhostURL: {ok: true, latency: time.Millisecond}})
	p.gate = make(chan struct{})
	p.started = make(chan struct{})
	f := newFixture(t, platform.Web{}, p, nil)

	const callers = 20
	var wg sync.WaitGroup
	got := make([]string, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = f.r.Resolve(context.Background(), ResolveOptions{})
		}()
	}

	<-p.started
	require.Eventually(t, func() bool { return f.r.Snapshot().Resolving }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	for _, g := range got {
		assert.Equal(t, localhostURL, g)
	}
	// one probe per candidate: LAN and localhost
	assert.Equal(t, 2, p.Total())
}

func TestResolve_CooldownReturnsLastKnown(t *testing.T) {
	p := newFakeProber(map[string]outcome{})
	f := newFixture(t, platform.Web{}, p, nil)
	ctx := context.Background()

	fallback := f.r.Resolve(ctx, ResolveOptions{})
	assert.Equal(t, localhostURL, fallback)
	probes := p.Total()

	f.clock.Advance(5 * time.Second)
	assert.Equal(t, fallback, f.r.Resolve(ctx, ResolveOptions{}))
	assert.Equal(t, probes, p.Total(), "cooldown must suppress probing")

	f.clock.Advance(6 * time.Second)
	p.set(lanURL, outcome{ok: true, latency: time.Millisecond})
	assert.Equal(t, lanURL, f.r.Resolve(ctx, ResolveOptions{}))
	assert.Equal(t, 2*probes, p.Total())
}

func TestResolve_TTLExpiryTriggersProbe(t *testing.T) {
	p := newFakeProber(map[string]outcome{localhostURL: {ok: true, latency: time.Millisecond}})
	f := newFixture(t, platform.Web{}, p, nil)
	ctx := context.Background()

	f.r.Resolve(ctx, ResolveOptions{})
	probes := p.Total()

	f.clock.Advance(4 * time.Minute)
	f.r.Resolve(ctx, ResolveOptions{})
	assert.Equal(t, probes, p.Total())

	f.clock.Advance(2 * time.Minute)
	f.r.Resolve(ctx, ResolveOptions{})
	assert.Equal(t, 2*probes, p.Total())
}

func TestResolve_DurableCacheSurvivesRestart(t *testing.T) {
	store := memory.New()
	p := newFakeProber(map[string]outcome{lanURL: {ok: true, latency: time.Millisecond}})
	first := newFixture(t, platform.Web{}, p, store)
	first.r.Resolve(context.Background(), ResolveOptions{})

	restarted := newFakeProber(map[string]outcome{})
	second := newFixture(t, platform.Web{}, restarted, store)
	assert.Equal(t, lanURL, second.r.Resolve(context.Background(), ResolveOptions{}))
	assert.Equal(t, 0, restarted.Total())

	cur, ok := second.r.CurrentEndpoint()
	require.True(t, ok)
	assert.Equal(t, lanURL, cur)
}

func TestResolve_CallerCancelGetsFallback(t *testing.T) {
	p := newFakeProber(map[string]outcome{lanURL: {ok: true, latency: time.Millisecond}})
	p.gate = make(chan struct{})
	p.started = make(chan struct{})
	f := newFixture(t, platform.Web{}, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan string, 1)
	go func() { done <- f.r.Resolve(ctx, ResolveOptions{}) }()

	<-p.started
	cancel()
	assert.Equal(t, localhostURL, <-done)

	close(p.gate)
	assert.Equal(t, lanURL, f.r.Resolve(context.Background(), ResolveOptions{}))
	assert.Equal(t, 2, p.Total(), "the abandoned resolution keeps running and is reused")
}

func TestHealthCheck(t *testing.T) {
	p := newFakeProber(map[string]outcome{localhostURL: {ok: true, latency: time.Millisecond}})
	f := newFixture(t, platform.Web{}, p, nil)
	ctx := context.Background()

	assert.False(t, f.r.HealthCheck(ctx), "no active endpoint")

	f.r.Resolve(ctx, ResolveOptions{})
	assert.True(t, f.r.HealthCheck(ctx))
	_, ok := f.r.CurrentEndpoint()
	assert.True(t, ok)

	p.set(localhostURL, outcome{})
	assert.False(t, f.r.HealthCheck(ctx))
	_, ok = f.r.CurrentEndpoint()
	assert.False(t, ok)
	_, ok, _ = f.store.GetItem(ctx, cache.DefaultKey)
	assert.False(t, ok)
	assert.Empty(t, f.r.Snapshot().LastKnown)
}

func TestReset(t *testing.T) {
	p := newFakeProber(map[string]outcome{localhostURL: {ok: true, latency: time.Millisecond}})
	f := newFixture(t, platform.Web{}, p, nil)
	ctx := context.Background()

	f.r.Resolve(ctx, ResolveOptions{})
	probes := p.Total()
	f.r.Reset(ctx)

	_, ok := f.r.CurrentEndpoint()
	assert.False(t, ok)
	_, ok, _ = f.store.GetItem(ctx, cache.DefaultKey)
	assert.False(t, ok)

	// no cooldown after a reset
	f.r.Resolve(ctx, ResolveOptions{})
	assert.Equal(t, 2*probes, p.Total())
}

func TestSnapshot(t *testing.T) {
	p := newFakeProber(map[string]outcome{lanURL: {ok: true, latency: time.Millisecond}})
	f := newFixture(t, platform.IOS{}, p, nil)

	f.r.Resolve(context.Background(), ResolveOptions{})
	s := f.r.Snapshot()
	assert.Equal(t, lanURL, s.Current)
	assert.Equal(t, domain.KindLAN, s.Kind)
	assert.True(t, s.Fresh)
	assert.Equal(t, domain.PlatformIOS, s.Platform)
	assert.Equal(t, "http://localhost:8081", s.Fallback)
	assert.Len(t, s.LastResults, 2)
	assert.False(t, s.Resolving)
}

func TestCandidates(t *testing.T) {
	f := newFixture(t, platform.Android{}, newFakeProber(nil), nil)
	got := f.r.Candidates(context.Background())
	require.Len(t, got, 2)
	assert.Equal(t, lanURL, got[0].URL)
	assert.Equal(t, "http://10.0.2.2:8081", got[1].URL)
}

func TestSetEndpoint_DuringResolutionIsKept(t *testing.T) {
	p := newFakeProber(map[string]outcome{lanURL: {ok: true, latency: time.Millisecond}})
	p.gate = make(chan struct{})
	p.started = make(chan struct{})
	f := newFixture(t, platform.Web{}, p, nil)
	ctx := context.Background()

	done := make(chan string, 1)
	go func() { done <- f.r.Resolve(ctx, ResolveOptions{}) }()

	<-p.started
	require.NoError(t, f.r.SetEndpoint(ctx, "http://custom:9999"))
	close(p.gate)

	assert.Equal(t, "http://custom:9999", <-done)
	cur, ok := f.r.CurrentEndpoint()
	require.True(t, ok)
	assert.Equal(t, "http://custom:9999", cur)
	assert.Equal(t, "http://custom:9999", f.r.Resolve(ctx, ResolveOptions{}))

	entry, ok := f.r.cache.Peek()
	require.True(t, ok)
	assert.Equal(t, "http://custom:9999", entry.URL)
}

func TestReset_DuringResolutionIsNotUndone(t *testing.T) {
	p := newFakeProber(map[string]outcome{lanURL: {ok: true, latency: time.Millisecond}})
	p.gate = make(chan struct{})
	p.started = make(chan struct{})
	f := newFixture(t, platform.Web{}, p, nil)
	ctx := context.Background()

	done := make(chan string, 1)
	go func() { done <- f.r.Resolve(ctx, ResolveOptions{}) }()

	<-p.started
	f.r.Reset(ctx)
	close(p.gate)
	<-done

	_, ok := f.r.CurrentEndpoint()
	assert.False(t, ok, "reset must survive the in-flight result")
	_, ok = f.r.cache.Peek()
	assert.False(t, ok)
	assert.Empty(t, f.r.Snapshot().LastKnown)

	assert.Equal(t, lanURL, f.r.Resolve(ctx, ResolveOptions{}))
	assert.Equal(t, 4, p.Total(), "next call probes again")
}

func TestSetEndpoint_PinnedPastTTL(t *testing.T) {
	p := newFakeProber(map[string]outcome{localhostURL: {ok: true, latency: time.Millisecond}})
	f := newFixture(t, platform.Web{}, p, nil)
	ctx := context.Background()

	require.NoError(t, f.r.SetEndpoint(ctx, "http://custom:9999"))
	f.clock.Advance(6 * time.Minute)

	assert.Equal(t, "http://custom:9999", f.r.Resolve(ctx, ResolveOptions{}))
	assert.Equal(t, 0, p.Total())
	assert.True(t, f.r.Snapshot().Pinned)

	assert.Equal(t, localhostURL, f.r.Resolve(ctx, ResolveOptions{ForceRefresh: true}))
	assert.False(t, f.r.Snapshot().Pinned)
}
