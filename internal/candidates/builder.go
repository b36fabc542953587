// Package candidates assembles the ordered list of API base URLs worth
// probing for the current platform and deployment mode.
package candidates

import (
	"context"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/endpointresolver/internal/domain"
	"github.com/hamed0406/endpointresolver/internal/netdetect"
	"github.com/hamed0406/endpointresolver/internal/platform"
)

const (
	DefaultPort          = 8081
	DefaultDetectTimeout = time.Second
)

type Input struct {
	Mode          domain.Mode
	OverrideURL   string
	TunnelURL     string
	ProductionURL string
	SecondaryURLs []string
	Port          int
	HealthPath    string
	// LANIP skips detection when set.
	LANIP string
}

type Builder struct {
	Platform      platform.Provider
	Detector      netdetect.Detector
	DetectTimeout time.Duration
	Logger        *zap.Logger
}

func NewBuilder(p platform.Provider, d netdetect.Detector, logger *zap.Logger) *Builder {
	if p == nil {
		p = platform.Web{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{Platform: p, Detector: d, DetectTimeout: DefaultDetectTimeout, Logger: logger}
}

// Build never fails: a context that can form no candidate gets the platform
// loopback as a last resort.
func (b *Builder) Build(ctx context.Context, in Input) []domain.Candidate {
	port := in.Port
	if port <= 0 {
		port = DefaultPort
	}
	hp := in.HealthPath
	if hp == "" {
		hp = domain.DefaultHealthPath
	}

	var raw []domain.Candidate
	add := func(kind domain.Kind, u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		raw = append(raw, domain.Candidate{Kind: kind, URL: strings.TrimRight(u, "/"), Priority: len(raw), HealthPath: hp})
	}

	switch in.Mode {
	case domain.ModeProduction:
		if in.ProductionURL != "" {
			add(domain.KindProduction, in.ProductionURL)
		} else {
			add(domain.KindCustom, in.OverrideURL)
		}
	case domain.ModeTunnel:
		if in.TunnelURL != "" {
			add(domain.KindTunnel, in.TunnelURL)
		} else {
			add(domain.KindCustom, in.OverrideURL)
		}
	default:
		add(domain.KindCustom, in.OverrideURL)
		if ip := b.lanIP(ctx, in.LANIP); ip != "" {
			add(domain.KindLAN, "http://"+net.JoinHostPort(ip, strconv.Itoa(port)))
		}
		add(domain.KindLoopback, b.Platform.FallbackURL(port))
		for _, s := range in.SecondaryURLs {
			add(domain.KindCustom, s)
		}
	}

	out := b.dedupe(raw)
	if len(out) == 0 {
		b.Logger.Warn("candidates_empty_using_last_resort",
			zap.String("mode", string(in.Mode)),
			zap.String("platform", string(b.Platform.Name())),
		)
		return []domain.Candidate{{
			Kind:       domain.KindLoopback,
			URL:        b.Platform.FallbackURL(port),
			HealthPath: hp,
		}}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func (b *Builder) lanIP(ctx context.Context, preset string) string {
	if preset != "" {
		return preset
	}
	if b.Detector == nil {
		return ""
	}
	timeout := b.DetectTimeout
	if timeout <= 0 {
		timeout = DefaultDetectTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ip, err := b.Detector.DetectLANIP(dctx)
	if err != nil {
		b.Logger.Debug("lan_detect_failed", zap.Error(err))
		return ""
	}
	return ip
}

func (b *Builder) dedupe(in []domain.Candidate) []domain.Candidate {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Candidate, 0, len(in))
	for _, c := range in {
		if err := c.Validate(); err != nil {
			b.Logger.Warn("candidate_invalid",
				zap.String("kind", string(c.Kind)),
				zap.String("url", c.URL),
				zap.Error(err),
			)
			continue
		}
		key := domain.NormalizeURL(c.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
