// Package redis shares resolver state through Redis, e.g. between
// several debug workers on the same machine.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/endpointresolver/internal/repo"
)

const defaultPrefix = "endpointresolver:"

func init() {
	repo.Register("redis", func(ctx context.Context, o repo.Options) (repo.KVStore, error) {
		return New(ctx, o)
	})
}

type Store struct {
	client *redis.Client
	prefix string
}

func New(ctx context.Context, o repo.Options) (*Store, error) {
	if o.RedisAddr == "" {
		return nil, errors.New("redis: empty addr")
	}
	dial := o.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         o.RedisAddr,
		Password:     o.RedisPassword,
		DB:           o.RedisDB,
		DialTimeout:  dial,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := o.KeyPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return NewWithClient(client, prefix), nil
}

func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

func (s *Store) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) RemoveItem(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ repo.KVStore = (*Store)(nil)
