package probe

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hamed0406/endpointresolver/internal/domain"
)

var tracer = otel.Tracer("github.com/hamed0406/endpointresolver/internal/probe")

// Race probes every candidate concurrently and waits for all of them to
// settle. The winner is the lowest-latency success; nil when all failed.
// results[i] belongs to cands[i].
func Race(ctx context.Context, p Prober, cands []domain.Candidate, timeout time.Duration) (*domain.Candidate, []domain.ProbeResult) {
	ctx, span := tracer.Start(ctx, "probe.Race")
	defer span.End()
	span.SetAttributes(attribute.Int("candidates", len(cands)))

	results := make([]domain.ProbeResult, len(cands))
	var wg sync.WaitGroup
	for i, c := range cands {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					results[i] = domain.ProbeResult{
						Candidate: c,
						Reason:    domain.ReasonNetworkError,
						Detail:    fmt.Sprintf("probe panic: %v", rec),
						CheckedAt: time.Now().UTC(),
					}
				}
			}()
			results[i] = p.Probe(ctx, c, timeout)
		}()
	}
	wg.Wait()

	idx := SelectWinner(results)
	if idx < 0 {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, results
	}
	w := results[idx].Candidate
	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.String("winner", w.URL),
		attribute.Float64("winner_latency_ms", results[idx].LatencyMS),
	)
	return &w, results
}

// SelectWinner returns the index of the successful result with the lowest
// latency, or -1. Ties go to the lower candidate priority, then input order.
func SelectWinner(results []domain.ProbeResult) int {
	ok := make([]int, 0, len(results))
	for i, r := range results {
		if r.Success {
			ok = append(ok, i)
		}
	}
	if len(ok) == 0 {
		return -1
	}
	sort.SliceStable(ok, func(a, b int) bool {
		ra, rb := results[ok[a]], results[ok[b]]
		if ra.Latency != rb.Latency {
			return ra.Latency < rb.Latency
		}
		return ra.Candidate.Priority < rb.Candidate.Priority
	})
	return ok[0]
}
