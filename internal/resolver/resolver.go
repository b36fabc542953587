// Package resolver is the single entry point for "the" current API base URL.
// It hides candidate building, probe racing, caching and cooldown behind
// operations that never fail: callers always get some plausible URL.
package resolver

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hamed0406/endpointresolver/internal/cache"
	"github.com/hamed0406/endpointresolver/internal/candidates"
	"github.com/hamed0406/endpointresolver/internal/domain"
	"github.com/hamed0406/endpointresolver/internal/observability"
	"github.com/hamed0406/endpointresolver/internal/platform"
	"github.com/hamed0406/endpointresolver/internal/probe"
)

const (
	DefaultCooldown = 10 * time.Second
	resolveKey      = "resolve"
)

var tracer = otel.Tracer("github.com/hamed0406/endpointresolver/internal/resolver")

// CandidateSource is satisfied by *candidates.Builder.
type CandidateSource interface {
	Build(ctx context.Context, in candidates.Input) []domain.Candidate
}

type Options struct {
	Candidates CandidateSource
	// Inputs is read once per resolution so environment changes are picked
	// up without a restart.
	Inputs   func() candidates.Input
	Prober   probe.Prober
	Cache    *cache.Cache
	Platform platform.Provider

	ProbeTimeout time.Duration
	Cooldown     time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

type ResolveOptions struct {
	ForceRefresh bool
	// Timeout is the per-probe timeout; zero uses the resolver default.
	Timeout time.Duration
}

// Resolver owns the process-wide endpoint state. Construct one at startup
// and share it; tests build a fresh instance instead of resetting globals.
type Resolver struct {
	candidates CandidateSource
	inputs     func() candidates.Input
	prober     probe.Prober
	cache      *cache.Cache
	platform   platform.Provider
	timeout    time.Duration
	cooldown   time.Duration
	now        func() time.Time
	logger     *zap.Logger
	metrics    *observability.Metrics

	group singleflight.Group
	// commit serialises every write of the adopted endpoint to memory and
	// cache, so the generation check and the write happen as one step.
	commit sync.Mutex

	mu          sync.Mutex
	working     domain.CacheEntry
	workingKind domain.Kind
	// pinned is set by SetEndpoint; the override outlives the TTL until a
	// Reset, a failed health check or a forced resolution replaces it.
	pinned bool
	// gen is bumped by SetEndpoint and Reset. A resolution that started
	// under an older generation must not adopt its winner.
	gen         uint64
	lastKnown   string
	resolving   bool
	lastAttempt time.Time
	lastResults []domain.ProbeResult
}

func New(o Options) *Resolver {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Platform == nil {
		o.Platform = platform.Web{}
	}
	if o.Candidates == nil {
		o.Candidates = candidates.NewBuilder(o.Platform, nil, o.Logger)
	}
	if o.Inputs == nil {
		o.Inputs = func() candidates.Input { return candidates.Input{Mode: domain.ModeLocal} }
	}
	if o.Prober == nil {
		o.Prober = probe.NewHTTPProber()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Cache == nil {
		o.Cache = cache.New(nil, cache.Options{Now: o.Now, Logger: o.Logger, Metrics: o.Metrics})
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = probe.DefaultTimeout
	}
	if o.Cooldown < 0 {
		o.Cooldown = 0
	} else if o.Cooldown == 0 {
		o.Cooldown = DefaultCooldown
	}
	return &Resolver{
		candidates: o.Candidates,
		inputs:     o.Inputs,
		prober:     o.Prober,
		cache:      o.Cache,
		platform:   o.Platform,
		timeout:    o.ProbeTimeout,
		cooldown:   o.Cooldown,
		now:        o.Now,
		logger:     o.Logger,
		metrics:    o.Metrics,
	}
}

// Resolve returns the API base URL to use. It never returns "".
func (r *Resolver) Resolve(ctx context.Context, o ResolveOptions) string {
	if !o.ForceRefresh {
		if url, ok := r.fresh(ctx); ok {
			return url
		}
	}

	r.mu.Lock()
	joining := r.resolving
	if !joining && !o.ForceRefresh && r.lastKnown != "" && r.now().Sub(r.lastAttempt) < r.cooldown {
		url := r.lastKnown
		r.mu.Unlock()
		r.metrics.Resolution(observability.OutcomeCooldown)
		r.logger.Debug("resolver_cooldown_last_known", zap.String("url", url))
		return url
	}
	r.mu.Unlock()

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	ch := r.group.DoChan(resolveKey, func() (interface{}, error) {
		return r.resolveFresh(timeout), nil
	})

	select {
	case res := <-ch:
		if joining || res.Shared {
			r.metrics.Resolution(observability.OutcomeJoined)
		}
		return res.Val.(string)
	case <-ctx.Done():
		url := r.lastKnownOrFallback()
		r.logger.Debug("resolver_caller_gave_up", zap.String("url", url), zap.Error(ctx.Err()))
		return url
	}
}

func (r *Resolver) fresh(ctx context.Context) (string, bool) {
	r.mu.Lock()
	w, pinned, gen := r.working, r.pinned, r.gen
	r.mu.Unlock()
	if (pinned && w.URL != "") || w.Fresh(r.now()) {
		r.metrics.Resolution(observability.OutcomeHitMemory)
		return w.URL, true
	}

	url, ok := r.cache.Get(ctx)
	if !ok {
		return "", false
	}
	entry, _ := r.cache.Peek()
	if entry.URL != url {
		entry = domain.CacheEntry{URL: url, ResolvedAt: r.now(), TTL: r.cache.TTL()}
	}
	r.mu.Lock()
	if r.gen == gen {
		r.working = entry
		r.lastKnown = url
	}
	r.mu.Unlock()
	r.metrics.Resolution(observability.OutcomeHitCache)
	return url, true
}

// resolveFresh runs detached from any single caller's context so a caller
// that gives up cannot cancel the probes others are waiting on.
func (r *Resolver) resolveFresh(timeout time.Duration) string {
	r.mu.Lock()
	r.resolving = true
	r.lastAttempt = r.now()
	gen := r.gen
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.resolving = false
		r.mu.Unlock()
	}()

	ctx, span := tracer.Start(context.Background(), "resolver.resolve")
	defer span.End()

	in := r.inputs()
	cands := r.candidates.Build(ctx, in)
	winner, results := probe.Race(ctx, r.prober, cands, timeout)

	for _, res := range results {
		r.metrics.ObserveProbe(res)
		if !res.Success {
			r.metrics.Suppressed("probe")
			r.logger.Debug("probe_failed",
				zap.String("kind", string(res.Candidate.Kind)),
				zap.String("url", res.Candidate.URL),
				zap.String("reason", string(res.Reason)),
				zap.String("detail", res.Detail),
			)
		}
	}

	r.mu.Lock()
	r.lastResults = results
	r.mu.Unlock()

	if winner == nil {
		fallback := r.platform.FallbackURL(portOf(in))
		r.mu.Lock()
		if r.gen != gen {
			override := r.working.URL
			r.mu.Unlock()
			if override != "" {
				return override
			}
			return fallback
		}
		r.lastKnown = fallback
		r.mu.Unlock()

		span.SetAttributes(attribute.String("fallback", fallback))
		r.metrics.Resolution(observability.OutcomeFallback)
		r.logger.Warn("resolver_fallback",
			zap.String("platform", string(r.platform.Name())),
			zap.String("url", fallback),
			zap.Int("candidates", len(cands)),
			zap.Strings("reasons", reasons(results)),
		)
		return fallback
	}

	r.commit.Lock()
	r.mu.Lock()
	superseded, override := r.gen != gen, r.working.URL
	r.mu.Unlock()
	if superseded {
		r.commit.Unlock()
		r.logger.Info("resolver_result_superseded",
			zap.String("winner", winner.URL),
			zap.String("current", override),
		)
		if override != "" {
			return override
		}
		return winner.URL
	}
	entry := r.cache.Set(ctx, winner.URL)
	r.mu.Lock()
	r.working = entry
	r.workingKind = winner.Kind
	r.pinned = false
	r.lastKnown = winner.URL
	r.mu.Unlock()
	r.commit.Unlock()

	span.SetAttributes(attribute.String("winner", winner.URL))
	r.metrics.Resolution(observability.OutcomeResolved)
	r.logger.Info("resolver_resolved",
		zap.String("kind", string(winner.Kind)),
		zap.String("url", winner.URL),
		zap.Int("candidates", len(cands)),
	)
	return winner.URL
}

// SetEndpoint adopts url immediately without probing and pins it: it stays
// active past the cache TTL until Reset, a failed HealthCheck or a forced
// Resolve. A resolution already in flight does not overwrite it. The only
// error is a malformed url.
func (r *Resolver) SetEndpoint(ctx context.Context, url string) error {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if err := domain.ValidateBaseURL(url); err != nil {
		return err
	}
	r.commit.Lock()
	entry := r.cache.Set(ctx, url)
	r.mu.Lock()
	r.gen++
	r.working = entry
	r.workingKind = domain.KindCustom
	r.pinned = true
	r.lastKnown = url
	r.mu.Unlock()
	r.commit.Unlock()

	r.metrics.Resolution(observability.OutcomeOverride)
	r.logger.Info("resolver_endpoint_set", zap.String("url", url))
	return nil
}

// Reset forgets everything, including the durable cache and cooldown.
func (r *Resolver) Reset(ctx context.Context) {
	r.commit.Lock()
	r.mu.Lock()
	r.gen++
	r.working = domain.CacheEntry{}
	r.workingKind = ""
	r.pinned = false
	r.lastKnown = ""
	r.lastAttempt = time.Time{}
	r.lastResults = nil
	r.mu.Unlock()
	r.cache.Clear(ctx)
	r.commit.Unlock()
	r.logger.Info("resolver_reset")
}

// CurrentEndpoint never blocks and never resolves.
func (r *Resolver) CurrentEndpoint() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.working.URL, r.working.URL != ""
}

// HealthCheck re-probes only the active endpoint. A failed check drops the
// endpoint and the cache so the next Resolve probes again.
func (r *Resolver) HealthCheck(ctx context.Context) bool {
	r.mu.Lock()
	url, kind := r.working.URL, r.workingKind
	r.mu.Unlock()
	if url == "" {
		return false
	}

	in := r.inputs()
	res := r.prober.Probe(ctx, domain.Candidate{Kind: kind, URL: url, HealthPath: in.HealthPath}, r.timeout)
	r.metrics.ObserveProbe(res)
	r.metrics.HealthCheck(res.Success)
	if res.Success {
		return true
	}

	r.commit.Lock()
	r.mu.Lock()
	dropped := r.working.URL == url
	if dropped {
		r.working = domain.CacheEntry{}
		r.workingKind = ""
		r.pinned = false
		r.lastKnown = ""
	}
	r.mu.Unlock()
	if dropped {
		r.cache.Clear(ctx)
	}
	r.commit.Unlock()

	r.metrics.Suppressed("health_check")
	r.logger.Warn("resolver_health_failed",
		zap.String("url", url),
		zap.String("reason", string(res.Reason)),
		zap.String("detail", res.Detail),
	)
	return false
}

// Candidates returns what a resolution would probe right now.
func (r *Resolver) Candidates(ctx context.Context) []domain.Candidate {
	return r.candidates.Build(ctx, r.inputs())
}

// Fallback is the platform default returned when every candidate fails.
func (r *Resolver) Fallback() string {
	return r.platform.FallbackURL(portOf(r.inputs()))
}

type Snapshot struct {
	Current       string               `json:"current,omitempty"`
	Kind          domain.Kind          `json:"kind,omitempty"`
	Pinned        bool                 `json:"pinned"`
	ResolvedAt    time.Time            `json:"resolved_at,omitempty"`
	Fresh         bool                 `json:"fresh"`
	LastKnown     string               `json:"last_known,omitempty"`
	Resolving     bool                 `json:"resolving"`
	LastAttemptAt time.Time            `json:"last_attempt_at,omitempty"`
	Platform      domain.Platform      `json:"platform"`
	Fallback      string               `json:"fallback"`
	TTL           string               `json:"ttl"`
	Cooldown      string               `json:"cooldown"`
	LastResults   []domain.ProbeResult `json:"last_results,omitempty"`
}

func (r *Resolver) Snapshot() Snapshot {
	fallback := r.Fallback()
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Current:       r.working.URL,
		Kind:          r.workingKind,
		Pinned:        r.pinned,
		ResolvedAt:    r.working.ResolvedAt,
		Fresh:         r.working.Fresh(now),
		LastKnown:     r.lastKnown,
		Resolving:     r.resolving,
		LastAttemptAt: r.lastAttempt,
		Platform:      r.platform.Name(),
		Fallback:      fallback,
		TTL:           r.cache.TTL().String(),
		Cooldown:      r.cooldown.String(),
		LastResults:   append([]domain.ProbeResult(nil), r.lastResults...),
	}
}

func (r *Resolver) lastKnownOrFallback() string {
	r.mu.Lock()
	url := r.lastKnown
	if url == "" {
		url = r.working.URL
	}
	r.mu.Unlock()
	if url != "" {
		return url
	}
	return r.Fallback()
}

func portOf(in candidates.Input) int {
	if in.Port > 0 {
		return in.Port
	}
	return candidates.DefaultPort
}

func reasons(results []domain.ProbeResult) []string {
	out := make([]string, 0, len(results))
	for _, res := range results {
		out = append(out, res.Candidate.URL+"="+string(res.Reason))
	}
	return out
}
