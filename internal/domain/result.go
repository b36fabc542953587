package domain

import (
	"encoding/json"
	"time"
)

type ErrorReason string

const (
	ReasonNone             ErrorReason = ""
	ReasonTimeout          ErrorReason = "timeout"
	ReasonNetworkError     ErrorReason = "network-error"
	ReasonNon2xxStatus     ErrorReason = "non-2xx-status"
	ReasonInvalidCandidate ErrorReason = "invalid-candidate"
)

// ProbeResult is created per probe attempt and never persisted.
// Latency is only meaningful when Success is true.
type ProbeResult struct {
	Candidate  Candidate     `json:"candidate"`
	Success    bool          `json:"success"`
	Latency    time.Duration `json:"-"`
	LatencyMS  float64       `json:"latency_ms,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Reason     ErrorReason   `json:"error_reason,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// CacheEntry is the single active resolution.
type CacheEntry struct {
	URL        string
	ResolvedAt time.Time
	TTL        time.Duration
}

func (e CacheEntry) Fresh(now time.Time) bool {
	if e.URL == "" {
		return false
	}
	return now.Sub(e.ResolvedAt) < e.TTL
}

type storedEntry struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

// MarshalStored encodes the durable form {"url", "timestamp"(unix ms)}.
func (e CacheEntry) MarshalStored() (string, error) {
	b, err := json.Marshal(storedEntry{URL: e.URL, Timestamp: e.ResolvedAt.UnixMilli()})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalStored(raw string, ttl time.Duration) (CacheEntry, error) {
	var s storedEntry
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return CacheEntry{}, err
	}
	if err := ValidateBaseURL(s.URL); err != nil {
		return CacheEntry{}, err
	}
	return CacheEntry{URL: s.URL, ResolvedAt: time.UnixMilli(s.Timestamp), TTL: ttl}, nil
}
