// Package app wires configuration into a running resolver and its debug
// surface. It is shared by the api command and tests.
package app

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/hamed0406/endpointresolver/internal/cache"
	"github.com/hamed0406/endpointresolver/internal/candidates"
	"github.com/hamed0406/endpointresolver/internal/config"
	"github.com/hamed0406/endpointresolver/internal/httpapi"
	apimw "github.com/hamed0406/endpointresolver/internal/httpapi/middleware"
	"github.com/hamed0406/endpointresolver/internal/netdetect"
	"github.com/hamed0406/endpointresolver/internal/notify"
	"github.com/hamed0406/endpointresolver/internal/observability"
	"github.com/hamed0406/endpointresolver/internal/platform"
	"github.com/hamed0406/endpointresolver/internal/probe"
	"github.com/hamed0406/endpointresolver/internal/repo"
	_ "github.com/hamed0406/endpointresolver/internal/repo/badger"
	"github.com/hamed0406/endpointresolver/internal/repo/memory"
	_ "github.com/hamed0406/endpointresolver/internal/repo/postgres"
	_ "github.com/hamed0406/endpointresolver/internal/repo/redis"
	_ "github.com/hamed0406/endpointresolver/internal/repo/sqlite"
	"github.com/hamed0406/endpointresolver/internal/resolver"
	"github.com/hamed0406/endpointresolver/internal/scheduler"
)

type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Store    repo.KVStore
	Cache    *cache.Cache
	Resolver *resolver.Resolver
	Alerter  *scheduler.Alerter
	Watchdog *scheduler.Watchdog
	Server   *httpapi.Server
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p, err := cfg.PlatformValue()
	if err != nil {
		return nil, err
	}
	if _, err := cfg.ModeValue(); err != nil {
		return nil, err
	}
	prov := platform.For(p)

	metrics := observability.NewMetrics()
	store := openStore(ctx, cfg.Cache, logger)
	c := cache.New(store, cache.Options{
		Key:     cfg.Cache.Key,
		TTL:     cfg.Cache.TTL,
		Logger:  logger,
		Metrics: metrics,
	})

	builder := candidates.NewBuilder(prov, netdetect.Interfaces{}, logger)
	builder.DetectTimeout = cfg.Probe.LANDetectTimeout

	cooldown := cfg.Resolver.Cooldown
	if cooldown == 0 {
		cooldown = -1 // disabled
	}
	res := resolver.New(resolver.Options{
		Candidates:   builder,
		Inputs:       cfg.Input,
		Prober:       newProber(cfg.Probe),
		Cache:        c,
		Platform:     prov,
		ProbeTimeout: cfg.Probe.Timeout,
		Cooldown:     cooldown,
		Logger:       logger,
		Metrics:      metrics,
	})

	notifier := notify.Multi{notify.Log{Logger: logger}}
	if s := notify.NewSlack(cfg.Watchdog.SlackWebhook); s != nil {
		notifier = append(notifier, s)
	}
	alerter := scheduler.NewAlerter(notifier, scheduler.AlerterConfig{
		AlertOnRecovery: cfg.Watchdog.AlertOnRecovery,
		Cooldown:        cfg.Watchdog.AlertCooldown,
	})
	watchdog := scheduler.NewWatchdog(logger, res, alerter, cfg.Watchdog.Interval, 0)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Store:    store,
		Cache:    c,
		Resolver: res,
		Alerter:  alerter,
		Watchdog: watchdog,
		Server:   httpapi.NewServer(logger, res, metrics),
	}, nil
}

// openStore never fails: an unusable durable backend degrades to the
// in-process store so resolution keeps working.
func openStore(ctx context.Context, cc config.CacheConfig, logger *zap.Logger) repo.KVStore {
	opts := repo.Options{
		Path:          cc.Path,
		DSN:           cc.DSN,
		RedisAddr:     cc.RedisAddr,
		RedisPassword: cc.RedisPassword,
		RedisDB:       cc.RedisDB,
	}
	s, err := repo.Open(ctx, cc.Backend, opts)
	if err != nil {
		logger.Warn("cache_backend_unavailable",
			zap.String("backend", cc.Backend),
			zap.Error(err),
		)
		return memory.New()
	}
	logger.Info("cache_backend_open", zap.String("backend", cc.Backend))
	return s
}

func newProber(pc config.ProbeConfig) probe.Prober {
	hp := probe.NewHTTPProber()
	hp.ClassifyDNS = pc.ClassifyDNS
	if pc.RetryAttempts <= 1 {
		return hp
	}
	return &probe.RetryProber{Inner: hp, Attempts: pc.RetryAttempts, Backoff: pc.RetryBackoff}
}

// Handler is the debug API with keys, CORS and rate limits from config.
func (a *App) Handler() http.Handler {
	api := a.Config.API
	return a.Server.Router(
		apimw.Keys{Public: api.PublicKeys, Admin: api.AdminKeys},
		api.AllowedOrigins,
		httpapi.RateLimits{
			PublicRPM:   api.PublicRPM,
			PublicBurst: api.PublicBurst,
			AdminRPM:    api.AdminRPM,
			AdminBurst:  api.AdminBurst,
		},
	)
}

// Warm resolves once so the first caller does not pay for probing.
func (a *App) Warm(ctx context.Context) string {
	url := a.Resolver.Resolve(ctx, resolver.ResolveOptions{})
	if _, ok := a.Resolver.CurrentEndpoint(); !ok {
		a.Logger.Warn("warmup_using_fallback", zap.String("url", url))
	}
	return url
}

// Close releases the durable store. The logger belongs to the caller.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
