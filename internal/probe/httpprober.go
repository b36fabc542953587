package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hamed0406/endpointresolver/internal/domain"
)

type HTTPProber struct {
	Client *http.Client
	// ClassifyDNS attaches a DNS class to network errors on hostname candidates.
	ClassifyDNS bool
	Resolver    hostResolver
}

// NewHTTPProber relies on per-probe contexts for timeouts, so the client
// carries none of its own.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		Client:      &http.Client{},
		ClassifyDNS: true,
	}
}

func (h *HTTPProber) Probe(ctx context.Context, c domain.Candidate, timeout time.Duration) domain.ProbeResult {
	res := domain.ProbeResult{Candidate: c, CheckedAt: time.Now().UTC()}
	if err := c.Validate(); err != nil {
		res.Reason = domain.ReasonInvalidCandidate
		res.Detail = err.Error()
		return res
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, c.ProbeURL(), nil)
	if err != nil {
		res.Reason = domain.ReasonInvalidCandidate
		res.Detail = err.Error()
		return res
	}

	start := time.Now()
	resp, err := h.client().Do(req)
	latency := time.Since(start)
	if err != nil {
		res.Reason = classifyErr(pctx, err)
		res.Detail = err.Error()
		if res.Reason == domain.ReasonNetworkError && h.ClassifyDNS {
			if u, perr := url.Parse(c.URL); perr == nil {
				if class := ClassifyHost(ctx, h.Resolver, u.Hostname()); class != "" {
					res.Detail = fmt.Sprintf("%s dns=%s", res.Detail, class)
				}
			}
		}
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	res.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Reason = domain.ReasonNon2xxStatus
		res.Detail = resp.Status
		return res
	}
	res.Success = true
	res.Latency = latency
	res.LatencyMS = latency.Seconds() * 1000
	return res
}

func (h *HTTPProber) client() *http.Client {
	if h.Client == nil {
		return http.DefaultClient
	}
	return h.Client
}

func classifyErr(ctx context.Context, err error) domain.ErrorReason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.ReasonTimeout
	}
	return domain.ReasonNetworkError
}
