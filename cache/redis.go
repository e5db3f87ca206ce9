package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jesserobertson/cogj/internal/metrics"
)

const redisKeyPrefix = "cogj:header:"

// RedisStore is a cogj.HeaderStore shared through Redis. Entries expire
// after the store's TTL so rebuilt containers are eventually picked up.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore returns a store on client. A TTL of zero keeps entries
// until Redis evicts them.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// OpenRedis connects to addr. An empty addr means no Redis and returns nil.
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

func (s *RedisStore) LoadHeader(ctx context.Context, locator string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+locator).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.CacheMissesTotal.WithLabelValues("header_redis").Inc()
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	metrics.CacheHitsTotal.WithLabelValues("header_redis").Inc()
	return raw, true, nil
}

func (s *RedisStore) StoreHeader(ctx context.Context, locator string, raw []byte) error {
	return s.client.Set(ctx, redisKeyPrefix+locator, raw, s.ttl).Err()
}
