// Package badger keeps resolver state in an embedded BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/hamed0406/endpointresolver/internal/repo"
)

const keyPrefix = "kv/"

func init() {
	repo.Register("badger", func(_ context.Context, o repo.Options) (repo.KVStore, error) {
		if o.InMemory {
			return NewInMemory()
		}
		return New(o.Path)
	})
}

type Store struct {
	db     *badger.DB
	closed atomic.Bool
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("badger: empty path")
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &Store{db: db}, nil
}

func NewInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badger open in-memory: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) GetItem(_ context.Context, key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, repo.ErrClosed
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("badger get: %w", err)
	}
	return string(data), true, nil
}

func (s *Store) SetItem(_ context.Context, key, value string) error {
	if s.closed.Load() {
		return repo.ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

func (s *Store) RemoveItem(_ context.Context, key string) error {
	if s.closed.Load() {
		return repo.ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

var _ repo.KVStore = (*Store)(nil)
