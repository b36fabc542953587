package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DNS classes attached to failed probes of hostname candidates.
const (
	DNSResolves      = "RESOLVES"
	DNSNXDomain      = "NXDOMAIN"
	DNSNoARecord     = "NO_A_RECORD"
	DNSServfail      = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName   = "INVALID_NAME"
	defaultDNSBudget = 2 * time.Second
)

type hostResolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// ClassifyHost explains why a hostname might be unreachable. IP literals are
// not classified.
func ClassifyHost(ctx context.Context, r hostResolver, host string) string {
	host = strings.TrimSpace(host)
	if host == "" || strings.Contains(host, "://") {
		return DNSInvalidName
	}
	if net.ParseIP(host) != nil || host == "localhost" {
		return ""
	}
	if r == nil {
		r = net.DefaultResolver
	}
	ctx, cancel := context.WithTimeout(ctx, defaultDNSBudget)
	defer cancel()

	ips, err := r.LookupIP(ctx, "ip", host)
	if err == nil && len(ips) > 0 {
		return DNSResolves
	}
	var de *net.DNSError
	if err != nil && errors.As(err, &de) && (de.IsTemporary || de.Timeout()) {
		return DNSServfail
	}
	if ns, nerr := r.LookupNS(ctx, host); nerr == nil && len(ns) > 0 {
		return DNSNoARecord
	}
	if err != nil && !(errors.As(err, &de) && de.IsNotFound) {
		return DNSServfail
	}
	return DNSNXDomain
}
