package memory

import (
	"context"
	"sync"

	"github.com/hamed0406/endpointresolver/internal/repo"
)

func init() {
	repo.Register("memory", func(context.Context, repo.Options) (repo.KVStore, error) {
		return New(), nil
	})
}

type Store struct {
	mu     sync.RWMutex
	items  map[string]string
	closed bool
}

func New() *Store {
	return &Store{items: make(map[string]string)}
}

func (m *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, repo.ErrClosed
	}
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Store) SetItem(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return repo.ErrClosed
	}
	m.items[key] = value
	return nil
}

func (m *Store) RemoveItem(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return repo.ErrClosed
	}
	delete(m.items, key)
	return nil
}

func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ repo.KVStore = (*Store)(nil)
