package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/endpointresolver/internal/resolver"
)

// Resolver is the part of *resolver.Resolver the watchdog drives.
type Resolver interface {
	CurrentEndpoint() (string, bool)
	HealthCheck(ctx context.Context) bool
	Resolve(ctx context.Context, o resolver.ResolveOptions) string
}

// Event is what a single watchdog pass observed.
type Event struct {
	At      time.Time
	Before  string
	After   string
	Healthy bool
	// Fallback is set when no candidate answered and the platform default
	// is in use.
	Fallback bool
}

func (e Event) Changed() bool { return e.Before != e.After }

type EventHandler interface {
	Handle(ctx context.Context, ev Event) error
}

type Watchdog struct {
	Logger   *zap.Logger
	Resolver Resolver
	Handler  EventHandler
	Interval time.Duration
	Timeout  time.Duration
}

func NewWatchdog(logger *zap.Logger, r Resolver, h EventHandler, interval, timeout time.Duration) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval < 0 {
		interval = 0
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Watchdog{
		Logger:   logger,
		Resolver: r,
		Handler:  h,
		Interval: interval,
		Timeout:  timeout,
	}
}

// Run does an immediate pass, then one per tick until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	if w.Interval == 0 {
		w.Logger.Info("watchdog_disabled")
		return
	}
	t := time.NewTicker(w.Interval)
	defer t.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("watchdog_stopped")
			return
		case <-t.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Watchdog) runOnce(ctx context.Context) Event {
	cctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	before, _ := w.Resolver.CurrentEndpoint()
	ev := Event{At: time.Now().UTC(), Before: before}

	ev.Healthy = w.Resolver.HealthCheck(cctx)
	if ev.Healthy {
		ev.After = before
	} else {
		ev.After = w.Resolver.Resolve(cctx, resolver.ResolveOptions{ForceRefresh: true})
		_, ok := w.Resolver.CurrentEndpoint()
		ev.Fallback = !ok
	}

	w.Logger.Debug("watchdog_checked",
		zap.String("before", ev.Before),
		zap.String("after", ev.After),
		zap.Bool("healthy", ev.Healthy),
		zap.Bool("fallback", ev.Fallback),
	)
	if w.Handler != nil {
		if err := w.Handler.Handle(ctx, ev); err != nil {
			w.Logger.Warn("watchdog_alert_error", zap.Error(err))
		}
	}
	return ev
}
