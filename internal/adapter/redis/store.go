// Package redis shares rendered responses between server instances.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/disaster-report-server/internal/config"
	"github.com/couchcryptid/disaster-report-server/internal/observability"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "cognicity:response:"

// Store is a byte-value cache in Redis. A ttl of 0 stores without expiry.
type Store struct {
	client  goredis.UniversalClient
	metrics *observability.Metrics
}

// NewStore connects lazily to the configured Redis server.
func NewStore(cfg *config.Config, metrics *observability.Metrics) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewStoreWithClient(client, metrics)
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client goredis.UniversalClient, metrics *observability.Metrics) *Store {
	return &Store{client: client, metrics: metrics}
}

// Get returns the value stored under key and its remaining time to live, 0
// when the key never expires. A missing key is not an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	var (
		get *goredis.StringCmd
		ttl *goredis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		get = pipe.Get(ctx, keyPrefix+key)
		ttl = pipe.PTTL(ctx, keyPrefix+key)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, false, fmt.Errorf("redis get: %w", err)
	}

	b, err := get.Bytes()
	if errors.Is(err, goredis.Nil) {
		s.observe("miss")
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("redis get: %w", err)
	}
	s.observe("hit")
	return b, remaining(ttl.Val()), true, nil
}

// remaining maps a PTTL reply to a time to live. Redis answers -1 for keys
// without expiry.
func remaining(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// Set stores value under key for ttl.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CheckReadiness pings Redis.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis not reachable: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) observe(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues("redis", result).Inc()
	}
}
