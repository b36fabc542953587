// Package cache remembers the last working API endpoint in process memory
// and in a durable key-value store.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/endpointresolver/internal/domain"
	"github.com/hamed0406/endpointresolver/internal/observability"
	"github.com/hamed0406/endpointresolver/internal/repo"
)

const (
	DefaultKey = "endpointresolver:api_endpoint"
	DefaultTTL = 5 * time.Minute
)

type Options struct {
	Key     string
	TTL     time.Duration
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Cache holds at most one entry. Durable failures are logged and swallowed;
// the in-memory layer stays authoritative for the process lifetime.
type Cache struct {
	store   repo.KVStore
	key     string
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *observability.Metrics

	mu  sync.RWMutex
	mem domain.CacheEntry
}

func New(store repo.KVStore, o Options) *Cache {
	if o.Key == "" {
		o.Key = DefaultKey
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Cache{
		store:   store,
		key:     o.Key,
		ttl:     o.TTL,
		now:     o.Now,
		logger:  o.Logger,
		metrics: o.Metrics,
	}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached URL while it is fresh. A durable hit repopulates
// the in-memory layer.
func (c *Cache) Get(ctx context.Context) (string, bool) {
	now := c.now()
	c.mu.RLock()
	mem := c.mem
	c.mu.RUnlock()
	if mem.Fresh(now) {
		return mem.URL, true
	}
	if c.store == nil {
		return "", false
	}

	raw, ok, err := c.store.GetItem(ctx, c.key)
	if err != nil {
		c.suppress("cache_get", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	entry, err := domain.UnmarshalStored(raw, c.ttl)
	if err != nil {
		c.suppress("cache_decode", err)
		if rerr := c.store.RemoveItem(ctx, c.key); rerr != nil {
			c.suppress("cache_remove", rerr)
		}
		return "", false
	}
	if !entry.Fresh(now) {
		return "", false
	}

	c.mu.Lock()
	c.mem = entry
	c.mu.Unlock()
	return entry.URL, true
}

// Peek returns the in-memory entry even if it is stale.
func (c *Cache) Peek() (domain.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mem, c.mem.URL != ""
}

func (c *Cache) Set(ctx context.Context, url string) domain.CacheEntry {
	entry := domain.CacheEntry{URL: url, ResolvedAt: c.now(), TTL: c.ttl}
	c.mu.Lock()
	c.mem = entry
	c.mu.Unlock()

	if c.store == nil {
		return entry
	}
	raw, err := entry.MarshalStored()
	if err != nil {
		c.suppress("cache_encode", err)
		return entry
	}
	if err := c.store.SetItem(ctx, c.key, raw); err != nil {
		c.suppress("cache_set", err)
	}
	return entry
}

func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.mem = domain.CacheEntry{}
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.RemoveItem(ctx, c.key); err != nil {
		c.suppress("cache_clear", err)
	}
}

func (c *Cache) suppress(op string, err error) {
	c.metrics.Suppressed(op)
	c.logger.Warn("cache_error_suppressed", zap.String("op", op), zap.Error(err))
}
