package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrClosed         = errors.New("store closed")
	ErrUnknownBackend = errors.New("unknown cache backend")
)

// KVStore is the durable string key-value layer behind the resolution cache.
// GetItem reports ok=false, err=nil when the key is absent.
type KVStore interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Close() error
}

// Options configures a backend; each backend reads the fields it needs.
type Options struct {
	// Path is a directory (badger) or file (sqlite).
	Path string
	// DSN is a connection string (postgres).
	DSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KeyPrefix   string
	DialTimeout time.Duration
	InMemory    bool
}

type Factory func(ctx context.Context, opts Options) (KVStore, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available to Open. Backends call it from init.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func Open(ctx context.Context, backend string, opts Options) (KVStore, error) {
	mu.RLock()
	f, ok := factories[backend]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownBackend, backend, Backends())
	}
	s, err := f(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}
	return s, nil
}
