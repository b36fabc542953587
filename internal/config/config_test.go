package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/hamed0406/endpointresolver/internal/domain"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Mode != "local" || cfg.Platform != "web" {
		t.Fatalf("mode/platform defaults wrong: %+v", cfg)
	}
	if cfg.Endpoint.Port != 8081 || cfg.Endpoint.HealthPath != "/api/health" {
		t.Fatalf("endpoint defaults wrong: %+v", cfg.Endpoint)
	}
	if cfg.Probe.Timeout != 5*time.Second || cfg.Cache.TTL != 5*time.Minute || cfg.Resolver.Cooldown != 10*time.Second {
		t.Fatalf("timing defaults wrong: %+v %+v %+v", cfg.Probe, cfg.Cache, cfg.Resolver)
	}
	if cfg.Cache.Backend != "memory" || cfg.API.Addr != "127.0.0.1:8090" || cfg.Observability.LogDir != "logs" {
		t.Fatalf("misc defaults wrong: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestFromEnv_ParsesOverrides(t *testing.T) {
	t.Setenv("RESOLVER_MODE", "network")
	t.Setenv("RESOLVER_PLATFORM", "android")
	t.Setenv("RESOLVER_ENDPOINT_OVERRIDE_URL", "http://192.168.1.101:8081")
	t.Setenv("RESOLVER_ENDPOINT_SECONDARY_URLS", "http://a:1, http://b:2")
	t.Setenv("RESOLVER_ENDPOINT_PORT", "9000")
	t.Setenv("RESOLVER_PROBE_TIMEOUT", "1500ms")
	t.Setenv("RESOLVER_CACHE_BACKEND", "badger")
	t.Setenv("RESOLVER_API_PUBLIC_KEYS", "pub_a,pub_b")
	t.Setenv("RESOLVER_API_ADMIN_KEYS", "adm_x")
	t.Setenv("RESOLVER_WATCHDOG_INTERVAL", "30s")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Mode != "network" || cfg.Platform != "android" {
		t.Fatalf("mode/platform wrong: %+v", cfg)
	}
	if cfg.Endpoint.OverrideURL != "http://192.168.1.101:8081" || cfg.Endpoint.Port != 9000 {
		t.Fatalf("endpoint wrong: %+v", cfg.Endpoint)
	}
	if len(cfg.Endpoint.SecondaryURLs) != 2 || cfg.Endpoint.SecondaryURLs[1] != "http://b:2" {
		t.Fatalf("secondary urls wrong: %q", cfg.Endpoint.SecondaryURLs)
	}
	if cfg.Probe.Timeout != 1500*time.Millisecond || cfg.Watchdog.Interval != 30*time.Second {
		t.Fatalf("durations wrong: %+v %+v", cfg.Probe, cfg.Watchdog)
	}
	if len(cfg.API.PublicKeys) != 2 || cfg.API.PublicKeys[0] != "pub_a" {
		t.Fatalf("public keys wrong: %+v", cfg.API.PublicKeys)
	}
	if len(cfg.API.AdminKeys) != 1 || cfg.API.AdminKeys[0] != "adm_x" {
		t.Fatalf("admin keys wrong: %+v", cfg.API.AdminKeys)
	}

	in := cfg.Input()
	if in.Mode != domain.ModeNetwork || in.Port != 9000 || in.OverrideURL == "" {
		t.Fatalf("input wrong: %+v", in)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolver.yaml")
	body := "mode: production\nendpoint:\n  production_url: https://api.example.com\ncache:\n  ttl: 1m\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "production" || cfg.Endpoint.ProductionURL != "https://api.example.com" || cfg.Cache.TTL != time.Minute {
		t.Fatalf("file values not applied: %+v", cfg)
	}

	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg, _ := FromEnv()
	cfg.Mode = "production"
	cfg.Platform = "symbian"
	cfg.Endpoint.OverrideURL = "ftp://nope"
	cfg.Endpoint.Port = 0

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 3 {
		t.Fatalf("want 3 problems (platform, override url, port), got %d: %v", n, err)
	}
}

func TestValidate_ProductionNeedsURL(t *testing.T) {
	cfg, _ := FromEnv()
	cfg.Mode = "production"
	if err := cfg.Validate(); err == nil {
		t.Fatal("production mode without a URL should not validate")
	}
}
