package probe

import (
	"context"
	"time"

	"github.com/hamed0406/endpointresolver/internal/domain"
)

const DefaultTimeout = 5 * time.Second

// Prober tests a single candidate. Implementations never return errors:
// every failure mode is captured in the result.
type Prober interface {
	Probe(ctx context.Context, c domain.Candidate, timeout time.Duration) domain.ProbeResult
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, c domain.Candidate, timeout time.Duration) domain.ProbeResult

func (f ProberFunc) Probe(ctx context.Context, c domain.Candidate, timeout time.Duration) domain.ProbeResult {
	return f(ctx, c, timeout)
}
