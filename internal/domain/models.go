package domain

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultHealthPath is appended to a candidate URL when probing.
const DefaultHealthPath = "/api/health"

type Kind string

const (
	KindLoopback   Kind = "loopback"
	KindLAN        Kind = "lan"
	KindTunnel     Kind = "tunnel"
	KindCustom     Kind = "custom"
	KindProduction Kind = "production"
)

type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformWeb, PlatformIOS, PlatformAndroid:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

type Mode string

const (
	ModeLocal      Mode = "local"
	ModeNetwork    Mode = "network"
	ModeTunnel     Mode = "tunnel"
	ModeProduction Mode = "production"
)

// ParseMode accepts "dev" as an alias of local.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLocal, ModeNetwork, ModeTunnel, ModeProduction:
		return m, nil
	case "dev", "development":
		return ModeLocal, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Candidate is one plausible API base URL.
type Candidate struct {
	Kind       Kind   `json:"kind"`
	URL        string `json:"url"`
	Priority   int    `json:"priority"`
	HealthPath string `json:"health_path"`
}

func (c Candidate) Validate() error {
	return ValidateBaseURL(c.URL)
}

// ProbeURL is the base URL joined with the health path.
func (c Candidate) ProbeURL() string {
	p := c.HealthPath
	if p == "" {
		p = DefaultHealthPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(c.URL, "/") + p
}

var ErrInvalidURL = errors.New("invalid endpoint url")

// ValidateBaseURL requires an absolute http(s) URL with a host.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}
	return nil
}

// NormalizeURL lowercases scheme and host, drops default ports and the
// trailing slash. Used as the de-duplication key for candidates.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
