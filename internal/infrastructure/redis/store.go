// Package redisinfra shares attempt counters across API instances through Redis.
package redisinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-shop-api/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to the configured Redis and pings it once.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Store maps counter keys onto prefixed Redis strings with native expiry.
type Store struct {
	rdb    redis.Cmdable
	prefix string
}

func NewStore(rdb redis.Cmdable, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) (int, error) {
	n, err := s.rdb.Get(ctx, s.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) Set(ctx context.Context, key string, value int, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
