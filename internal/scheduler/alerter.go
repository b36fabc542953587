package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hamed0406/endpointresolver/internal/notify"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
}

// AlertState is what the alerter remembers between events.
type AlertState struct {
	Endpoint   string
	InFallback bool
	LastSentAt time.Time
}

type Alerter struct {
	notifier notify.Notifier
	cfg      AlerterConfig
	now      func() time.Time

	mu    sync.Mutex
	state AlertState
}

func NewAlerter(n notify.Notifier, cfg AlerterConfig) *Alerter {
	return &Alerter{notifier: n, cfg: cfg, now: time.Now}
}

func (a *Alerter) State() AlertState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Handle sends at most one notification per event. Fallback and failover
// alerts respect the cooldown; recovery alerts bypass it.
func (a *Alerter) Handle(ctx context.Context, ev Event) error {
	a.mu.Lock()
	prev := a.state
	now := a.now()
	cooled := prev.LastSentAt.IsZero() || now.Sub(prev.LastSentAt) >= a.cfg.Cooldown

	var title, text string
	switch {
	case ev.Fallback && !prev.InFallback && cooled:
		title = "🔴 All endpoint candidates failed"
		text = fmt.Sprintf("Using fallback: %s\nPrevious: %s\nChecked: %s",
			ev.After, orNone(ev.Before), ev.At.Format(time.RFC3339))
	case !ev.Fallback && prev.InFallback && a.cfg.AlertOnRecovery:
		title = "🟢 Endpoint RECOVERED"
		text = fmt.Sprintf("Endpoint: %s\nChecked: %s", ev.After, ev.At.Format(time.RFC3339))
	case !ev.Fallback && !ev.Healthy && ev.Before != "" && ev.Changed() && cooled:
		title = "🟠 Endpoint failover"
		text = fmt.Sprintf("From: %s\nTo: %s\nChecked: %s", ev.Before, ev.After, ev.At.Format(time.RFC3339))
	}

	a.state.InFallback = ev.Fallback
	a.state.Endpoint = ev.After
	if title != "" {
		a.state.LastSentAt = now
	}
	a.mu.Unlock()

	if title == "" || a.notifier == nil {
		return nil
	}
	return a.notifier.Send(ctx, title, text)
}

func orNone(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
