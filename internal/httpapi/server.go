// Package httpapi is the developer debug surface over the resolver.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/endpointresolver/internal/domain"
	apimw "github.com/hamed0406/endpointresolver/internal/httpapi/middleware"
	"github.com/hamed0406/endpointresolver/internal/observability"
	"github.com/hamed0406/endpointresolver/internal/resolver"
)

// maxResolveTimeout caps the per-probe timeout a caller may request.
const maxResolveTimeout = time.Minute

type Resolver interface {
	Resolve(ctx context.Context, o resolver.ResolveOptions) string
	SetEndpoint(ctx context.Context, url string) error
	Reset(ctx context.Context)
	CurrentEndpoint() (string, bool)
	HealthCheck(ctx context.Context) bool
	Snapshot() resolver.Snapshot
	Candidates(ctx context.Context) []domain.Candidate
}

type Server struct {
	Logger   *zap.Logger
	Resolver Resolver
	Metrics  *observability.Metrics
}

func NewServer(l *zap.Logger, r Resolver, m *observability.Metrics) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Resolver: r, Metrics: m}
}

// RateLimits are requests per minute and burst for each key class.
type RateLimits struct {
	PublicRPM, PublicBurst int
	AdminRPM, AdminBurst   int
}

func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, limits RateLimits) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(limits.PublicRPM, limits.PublicBurst))
		r.Use(apimw.RequireAny(keys))
		r.Get("/api/endpoint", s.handleSnapshot)
		r.Get("/api/endpoint/health", s.handleHealth)
		r.Get("/api/candidates", s.handleCandidates)
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(limits.AdminRPM, limits.AdminBurst))
		r.Use(apimw.RequireAdmin(keys))
		r.Post("/api/endpoint/resolve", s.handleResolve)
		r.Put("/api/endpoint", s.handleSetEndpoint)
		r.Delete("/api/endpoint", s.handleReset)
	})

	return r
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Resolver.Snapshot())
}

type healthResponse struct {
	Endpoint string `json:"endpoint,omitempty"`
	Healthy  bool   `json:"healthy"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	endpoint, _ := s.Resolver.CurrentEndpoint()
	healthy := s.Resolver.HealthCheck(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Endpoint: endpoint, Healthy: healthy})
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Resolver.Candidates(r.Context()))
}

type resolveResponse struct {
	URL      string            `json:"url"`
	Snapshot resolver.Snapshot `json:"snapshot"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var o resolver.ResolveOptions
	if v := q.Get("force"); v != "" {
		force, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		o.ForceRefresh = force
	}
	if v := q.Get("timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			writeError(w, http.StatusBadRequest, "timeout_ms must be a positive integer")
			return
		}
		o.Timeout = min(time.Duration(ms)*time.Millisecond, maxResolveTimeout)
	}

	url := s.Resolver.Resolve(r.Context(), o)
	s.Logger.Info("api_resolve", zap.Bool("force", o.ForceRefresh), zap.String("url", url))
	writeJSON(w, http.StatusOK, resolveResponse{URL: url, Snapshot: s.Resolver.Snapshot()})
}

type setPayload struct {
	URL string `json:"url"`
}

func (s *Server) handleSetEndpoint(w http.ResponseWriter, r *http.Request) {
	var p setPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&p); err != nil || p.URL == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if err := s.Resolver.SetEndpoint(r.Context(), p.URL); err != nil {
		if errors.Is(err, domain.ErrInvalidURL) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "could not set endpoint")
		return
	}
	current, _ := s.Resolver.CurrentEndpoint()
	s.Logger.Info("api_endpoint_set", zap.String("url", current))
	writeJSON(w, http.StatusOK, setPayload{URL: current})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.Resolver.Reset(r.Context())
	s.Logger.Info("api_endpoint_reset")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
