// cmd/preflight/main.go
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/endpointresolver/internal/config"
	"github.com/hamed0406/endpointresolver/internal/domain"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✖", err)
		os.Exit(1)
	}
	if !preflight(cfg, os.Stdout, os.Stderr) {
		os.Exit(1)
	}
}

// preflight prints one line per finding and reports whether the config is
// usable.
func preflight(cfg config.Config, stdout, stderr io.Writer) bool {
	passed := true
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		passed = false
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	for _, err := range multierr.Errors(cfg.Validate()) {
		fail(err.Error())
	}

	if mode, err := cfg.ModeValue(); err == nil {
		ok("mode=" + string(mode))
		if (mode == domain.ModeLocal || mode == domain.ModeNetwork) && cfg.Endpoint.OverrideURL == "" {
			warn("RESOLVER_ENDPOINT_OVERRIDE_URL empty; only LAN and loopback candidates will be probed.")
		}
	}
	if p, err := cfg.PlatformValue(); err == nil {
		ok("platform=" + string(p))
	}

	if len(cfg.API.AdminKeys) == 0 {
		warn("RESOLVER_API_ADMIN_KEYS is empty; admin routes are open to anyone who can reach " + cfg.API.Addr + ".")
	}
	if len(cfg.API.PublicKeys) == 0 {
		warn("RESOLVER_API_PUBLIC_KEYS is empty; read routes need no key.")
	}
	if len(cfg.API.AllowedOrigins) == 0 {
		warn("RESOLVER_API_ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		ok("allowed origins=" + strings.Join(cfg.API.AllowedOrigins, ","))
	}

	switch cfg.Cache.Backend {
	case "memory":
		warn("cache backend is memory; the endpoint is re-probed after every restart.")
	case "postgres":
		if cfg.Cache.DSN == "" {
			fail("cache backend postgres needs RESOLVER_CACHE_DSN.")
		}
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			fail("cache backend redis needs RESOLVER_CACHE_REDIS_ADDR.")
		}
	case "sqlite", "badger":
		if cfg.Cache.Path == "" {
			fail("cache backend " + cfg.Cache.Backend + " needs RESOLVER_CACHE_PATH.")
		}
	default:
		fail("unknown cache backend " + cfg.Cache.Backend + "; the resolver would fall back to memory.")
	}
	if passed {
		ok("cache backend=" + cfg.Cache.Backend)
		ok("preflight passed")
	}
	return passed
}
