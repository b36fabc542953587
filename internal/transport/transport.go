// Package transport routes outgoing API calls to the resolved endpoint and
// forces a re-resolution when the endpoint keeps failing.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hamed0406/endpointresolver/internal/observability"
	"github.com/hamed0406/endpointresolver/internal/resolver"
)

const (
	DefaultFailureThreshold = 3
	DefaultOpenTimeout      = 30 * time.Second
	refreshTimeout          = 30 * time.Second
)

// Resolver is the subset of *resolver.Resolver the transport needs.
type Resolver interface {
	Resolve(ctx context.Context, o resolver.ResolveOptions) string
	CurrentEndpoint() (string, bool)
}

type Options struct {
	Base             http.RoundTripper
	FailureThreshold uint32
	// OpenTimeout is how long the breaker fails fast before letting a trial
	// request through.
	OpenTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

var errServerStatus = errors.New("server error status")

type Transport struct {
	resolver Resolver
	base     http.RoundTripper
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	metrics  *observability.Metrics
	// onRefresh, when set, is called after every background re-resolution.
	onRefresh func(endpoint string)
}

// New resolves once so the first request does not pay for probing.
func New(ctx context.Context, r Resolver, o Options) *Transport {
	if o.Base == nil {
		o.Base = http.DefaultTransport
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = DefaultOpenTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	t := &Transport{resolver: r, base: o.Base, logger: o.Logger, metrics: o.Metrics}
	threshold := o.FailureThreshold
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "endpoint",
		MaxRequests: 1,
		Timeout:     o.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			t.logger.Info("transport_breaker_state",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if to == gobreaker.StateOpen {
				go t.refresh()
			}
		},
	})
	r.Resolve(ctx, resolver.ResolveOptions{})
	return t
}

// Client wraps the transport in an http.Client.
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

// RoundTrip replaces the request's scheme and host with the active endpoint
// and joins the endpoint's path prefix in front of the request path. A 5xx
// response is returned to the caller but counts as a breaker failure.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base, ok := t.resolver.CurrentEndpoint()
	if !ok {
		base = t.resolver.Resolve(req.Context(), resolver.ResolveOptions{})
	}
	out, err := rewrite(req, base)
	if err != nil {
		return nil, err
	}

	v, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.base.RoundTrip(out)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, errServerStatus) {
		t.metrics.TransportFailure()
		return v.(*http.Response), nil
	}
	if err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			t.metrics.TransportFailure()
		}
		return nil, err
	}
	return v.(*http.Response), nil
}

func (t *Transport) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	endpoint := t.resolver.Resolve(ctx, resolver.ResolveOptions{ForceRefresh: true})
	t.logger.Warn("transport_endpoint_refreshed", zap.String("url", endpoint))
	if t.onRefresh != nil {
		t.onRefresh(endpoint)
	}
}

func rewrite(req *http.Request, base string) (*http.Request, error) {
	b, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", base, err)
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = b.Scheme
	out.URL.Host = b.Host
	out.URL.Path = joinPath(b.Path, req.URL.Path)
	out.URL.RawPath = ""
	out.Host = ""
	return out, nil
}

func joinPath(prefix, p string) string {
	prefix = strings.TrimRight(prefix, "/")
	if p == "" {
		return prefix + "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return prefix + p
}
