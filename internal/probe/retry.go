package probe

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hamed0406/endpointresolver/internal/domain"
)

var errProbeFailed = errors.New("probe failed")

// RetryProber re-probes a failing candidate with a constant backoff. The
// per-attempt timeout is unchanged, so the worst case is Attempts*timeout.
type RetryProber struct {
	Inner    Prober
	Attempts int
	Backoff  time.Duration
}

func (r *RetryProber) Probe(ctx context.Context, c domain.Candidate, timeout time.Duration) domain.ProbeResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Backoff), uint64(attempts-1)),
		ctx,
	)

	var (
		last domain.ProbeResult
		n    int
	)
	_ = backoff.Retry(func() error {
		n++
		last = r.Inner.Probe(ctx, c, timeout)
		if last.Success {
			return nil
		}
		if last.Reason == domain.ReasonInvalidCandidate {
			return backoff.Permanent(errProbeFailed)
		}
		return errProbeFailed
	}, b)

	if !last.Success && n > 1 {
		last.Detail = last.Detail + " (after retries)"
	}
	return last
}
