package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamed0406/endpointresolver/internal/domain"
)

// Resolution outcomes reported by the resolver.
const (
	OutcomeHitMemory = "hit_memory"
	OutcomeHitCache  = "hit_cache"
	OutcomeJoined    = "joined"
	OutcomeCooldown  = "cooldown"
	OutcomeResolved  = "resolved"
	OutcomeFallback  = "fallback"
	OutcomeOverride  = "override"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Registry          *prometheus.Registry
	ProbesTotal       *prometheus.CounterVec
	ProbeLatency      *prometheus.HistogramVec
	ResolutionsTotal  *prometheus.CounterVec
	SuppressedErrors  *prometheus.CounterVec
	TransportFailures prometheus.Counter
	HealthChecksTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	probes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_probes_total",
		Help: "Health probes by candidate kind and result.",
	}, []string{"kind", "result"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resolver_probe_latency_seconds",
		Help:    "Latency of successful health probes.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"kind"})

	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_resolutions_total",
		Help: "Resolve calls by how they were answered.",
	}, []string{"outcome"})

	suppressed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_suppressed_errors_total",
		Help: "Errors swallowed at the resolver boundary.",
	}, []string{"op"})

	transport := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resolver_transport_failures_total",
		Help: "Failed requests seen by the resolving transport.",
	})

	health := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_health_checks_total",
		Help: "Health checks of the active endpoint.",
	}, []string{"healthy"})

	reg.MustRegister(probes, latency, resolutions, suppressed, transport, health)

	return &Metrics{
		Registry:          reg,
		ProbesTotal:       probes,
		ProbeLatency:      latency,
		ResolutionsTotal:  resolutions,
		SuppressedErrors:  suppressed,
		TransportFailures: transport,
		HealthChecksTotal: health,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveProbe(r domain.ProbeResult) {
	if m == nil {
		return
	}
	kind := string(r.Candidate.Kind)
	if r.Success {
		m.ProbesTotal.WithLabelValues(kind, "success").Inc()
		m.ProbeLatency.WithLabelValues(kind).Observe(r.Latency.Seconds())
		return
	}
	m.ProbesTotal.WithLabelValues(kind, string(r.Reason)).Inc()
}

func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Suppressed(op string) {
	if m == nil {
		return
	}
	m.SuppressedErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) TransportFailure() {
	if m == nil {
		return
	}
	m.TransportFailures.Inc()
}

func (m *Metrics) HealthCheck(healthy bool) {
	if m == nil {
		return
	}
	v := "false"
	if healthy {
		v = "true"
	}
	m.HealthChecksTotal.WithLabelValues(v).Inc()
}
