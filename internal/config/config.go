package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/hamed0406/endpointresolver/internal/candidates"
	"github.com/hamed0406/endpointresolver/internal/domain"
)

// EnvPrefix namespaces every environment variable, e.g.
// RESOLVER_ENDPOINT_OVERRIDE_URL for endpoint.override_url.
const EnvPrefix = "RESOLVER"

type Config struct {
	Mode          string              `mapstructure:"mode"`
	Platform      string              `mapstructure:"platform"`
	Endpoint      EndpointConfig      `mapstructure:"endpoint"`
	Probe         ProbeConfig         `mapstructure:"probe"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Resolver      ResolverConfig      `mapstructure:"resolver"`
	API           APIConfig           `mapstructure:"api"`
	Watchdog      WatchdogConfig      `mapstructure:"watchdog"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type EndpointConfig struct {
	OverrideURL   string   `mapstructure:"override_url"`
	TunnelURL     string   `mapstructure:"tunnel_url"`
	ProductionURL string   `mapstructure:"production_url"`
	SecondaryURLs []string `mapstructure:"secondary_urls"`
	Port          int      `mapstructure:"port"`
	HealthPath    string   `mapstructure:"health_path"`
	LANIP         string   `mapstructure:"lan_ip"`
}

type ProbeConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	ClassifyDNS      bool          `mapstructure:"classify_dns"`
	LANDetectTimeout time.Duration `mapstructure:"lan_detect_timeout"`
}

type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	Key           string        `mapstructure:"key"`
	Path          string        `mapstructure:"path"`
	DSN           string        `mapstructure:"dsn"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type ResolverConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type APIConfig struct {
	Addr           string   `mapstructure:"addr"`
	PublicKeys     []string `mapstructure:"public_keys"`
	AdminKeys      []string `mapstructure:"admin_keys"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	PublicRPM      int      `mapstructure:"public_rpm"`
	PublicBurst    int      `mapstructure:"public_burst"`
	AdminRPM       int      `mapstructure:"admin_rpm"`
	AdminBurst     int      `mapstructure:"admin_burst"`
}

type WatchdogConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlertOnRecovery bool          `mapstructure:"alert_on_recovery"`
	AlertCooldown   time.Duration `mapstructure:"alert_cooldown"`
	SlackWebhook    string        `mapstructure:"slack_webhook"`
}

type ObservabilityConfig struct {
	LogLevel     string `mapstructure:"log_level"`
	LogDir       string `mapstructure:"log_dir"`
	LogStdout    bool   `mapstructure:"log_stdout"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// SetDefaults registers every key so AutomaticEnv can see it during
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(domain.ModeLocal))
	v.SetDefault("platform", string(domain.PlatformWeb))

	v.SetDefault("endpoint.override_url", "")
	v.SetDefault("endpoint.tunnel_url", "")
	v.SetDefault("endpoint.production_url", "")
	v.SetDefault("endpoint.secondary_urls", []string{})
	v.SetDefault("endpoint.port", candidates.DefaultPort)
	v.SetDefault("endpoint.health_path", domain.DefaultHealthPath)
	v.SetDefault("endpoint.lan_ip", "")

	v.SetDefault("probe.timeout", 5*time.Second)
	v.SetDefault("probe.retry_attempts", 1)
	v.SetDefault("probe.retry_backoff", 300*time.Millisecond)
	v.SetDefault("probe.classify_dns", true)
	v.SetDefault("probe.lan_detect_timeout", candidates.DefaultDetectTimeout)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.key", "endpointresolver:api_endpoint")
	v.SetDefault("cache.path", "data/endpoint")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("resolver.cooldown", 10*time.Second)

	v.SetDefault("api.addr", "127.0.0.1:8090")
	v.SetDefault("api.public_keys", []string{})
	v.SetDefault("api.admin_keys", []string{})
	v.SetDefault("api.allowed_origins", []string{})
	v.SetDefault("api.public_rpm", 120)
	v.SetDefault("api.public_burst", 60)
	v.SetDefault("api.admin_rpm", 30)
	v.SetDefault("api.admin_burst", 10)

	v.SetDefault("watchdog.interval", time.Duration(0))
	v.SetDefault("watchdog.alert_on_recovery", true)
	v.SetDefault("watchdog.alert_cooldown", 10*time.Minute)
	v.SetDefault("watchdog.slack_webhook", "")

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_dir", "logs")
	v.SetDefault("observability.log_stdout", false)
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.service_name", "endpointresolver")
}

// BindFlags adds the server flags most often overridden on the command line.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()

	f.String("addr", "", "debug API listen address")
	f.String("mode", "", "deployment mode (local, network, tunnel, production)")
	f.String("platform", "", "client platform (web, ios, android)")
	f.String("override-url", "", "explicit API base URL to try first")
	f.String("cache-backend", "", "durable cache backend")
	f.String("log-level", "", "log level (debug, info, warn, error)")

	_ = v.BindPFlag("api.addr", f.Lookup("addr"))
	_ = v.BindPFlag("mode", f.Lookup("mode"))
	_ = v.BindPFlag("platform", f.Lookup("platform"))
	_ = v.BindPFlag("endpoint.override_url", f.Lookup("override-url"))
	_ = v.BindPFlag("cache.backend", f.Lookup("cache-backend"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
}

// Load reads defaults, env and an optional config file, in increasing
// priority with flags bound by BindFlags on top.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.API.PublicKeys = splitList(cfg.API.PublicKeys)
	cfg.API.AdminKeys = splitList(cfg.API.AdminKeys)
	cfg.API.AllowedOrigins = splitList(cfg.API.AllowedOrigins)
	cfg.Endpoint.SecondaryURLs = splitList(cfg.Endpoint.SecondaryURLs)
	return cfg, nil
}

// FromEnv loads configuration from the environment only.
func FromEnv() (Config, error) {
	return Load(viper.New(), "")
}

// splitList tolerates "a, b" and "a b" forms coming from env variables.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) ModeValue() (domain.Mode, error)         { return domain.ParseMode(c.Mode) }
func (c Config) PlatformValue() (domain.Platform, error) { return domain.ParsePlatform(c.Platform) }

// Input is the candidate builder input for this configuration. Unknown
// modes resolve as local.
func (c Config) Input() candidates.Input {
	mode, err := c.ModeValue()
	if err != nil {
		mode = domain.ModeLocal
	}
	return candidates.Input{
		Mode:          mode,
		OverrideURL:   c.Endpoint.OverrideURL,
		TunnelURL:     c.Endpoint.TunnelURL,
		ProductionURL: c.Endpoint.ProductionURL,
		SecondaryURLs: c.Endpoint.SecondaryURLs,
		Port:          c.Endpoint.Port,
		HealthPath:    c.Endpoint.HealthPath,
		LANIP:         c.Endpoint.LANIP,
	}
}

var ErrInvalidConfig = errors.New("invalid config")

// Validate reports every problem at once; the result unwraps to
// ErrInvalidConfig.
func (c Config) Validate() error {
	var err error
	add := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	mode, merr := c.ModeValue()
	if merr != nil {
		add("mode: %v", merr)
	}
	if _, perr := c.PlatformValue(); perr != nil {
		add("platform: %v", perr)
	}
	for _, u := range []struct{ name, value string }{
		{"endpoint.override_url", c.Endpoint.OverrideURL},
		{"endpoint.tunnel_url", c.Endpoint.TunnelURL},
		{"endpoint.production_url", c.Endpoint.ProductionURL},
	} {
		if u.value == "" {
			continue
		}
		if verr := domain.ValidateBaseURL(u.value); verr != nil {
			add("%s: %v", u.name, verr)
		}
	}
	if mode == domain.ModeProduction && c.Endpoint.ProductionURL == "" && c.Endpoint.OverrideURL == "" {
		add("endpoint.production_url is required in production mode")
	}
	if mode == domain.ModeTunnel && c.Endpoint.TunnelURL == "" && c.Endpoint.OverrideURL == "" {
		add("endpoint.tunnel_url is required in tunnel mode")
	}
	if c.Endpoint.Port <= 0 || c.Endpoint.Port > 65535 {
		add("endpoint.port %d out of range", c.Endpoint.Port)
	}
	if c.Probe.Timeout <= 0 {
		add("probe.timeout must be positive")
	}
	if c.Cache.TTL <= 0 {
		add("cache.ttl must be positive")
	}
	if c.Resolver.Cooldown < 0 {
		add("resolver.cooldown must not be negative")
	}
	return err
}
