package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/endpointresolver/internal/resolver"
)

// --- fakes ---

type fakeResolver struct {
	mu       sync.Mutex
	current  string
	healthy  bool
	next     string
	checks   int
	resolves int
}

func (f *fakeResolver) CurrentEndpoint() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.current != ""
}

func (f *fakeResolver) HealthCheck(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if !f.healthy {
		f.current = ""
	}
	return f.healthy
}

func (f *fakeResolver) Resolve(ctx context.Context, o resolver.ResolveOptions) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	if f.next != "" {
		f.current = f.next
		return f.next
	}
	return "http://localhost:8081"
}

type recordingHandler struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingHandler) Handle(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// --- tests ---

func TestWatchdog_HealthyDoesNotResolve(t *testing.T) {
	fr := &fakeResolver{current: "http://a:8081", healthy: true}
	w := NewWatchdog(zap.NewNop(), fr, nil, time.Second, time.Second)

	ev := w.runOnce(context.Background())
	if !ev.Healthy || ev.Changed() || fr.resolves != 0 {
		t.Fatalf("unexpected event %+v resolves=%d", ev, fr.resolves)
	}
}

func TestWatchdog_UnhealthyFailsOver(t *testing.T) {
	fr := &fakeResolver{current: "http://a:8081", next: "http://b:8081"}
	w := NewWatchdog(zap.NewNop(), fr, nil, time.Second, time.Second)

	ev := w.runOnce(context.Background())
	if ev.Healthy || ev.Before != "http://a:8081" || ev.After != "http://b:8081" || ev.Fallback {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWatchdog_AllFailedIsFallback(t *testing.T) {
	fr := &fakeResolver{current: "http://a:8081"}
	w := NewWatchdog(zap.NewNop(), fr, nil, time.Second, time.Second)

	ev := w.runOnce(context.Background())
	if !ev.Fallback || ev.After != "http://localhost:8081" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWatchdog_RunLoopFeedsHandler(t *testing.T) {
	fr := &fakeResolver{current: "http://a:8081", healthy: true}
	h := &recordingHandler{}
	w := NewWatchdog(zap.NewNop(), fr, h, 2*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		n := len(h.events)
		h.mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("expected the immediate pass plus at least one tick")
}

func TestWatchdog_DisabledReturns(t *testing.T) {
	fr := &fakeResolver{}
	w := NewWatchdog(zap.NewNop(), fr, nil, 0, 0)
	w.Run(context.Background())
	if fr.checks != 0 {
		t.Fatalf("disabled watchdog ran %d checks", fr.checks)
	}
}
