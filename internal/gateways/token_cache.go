package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/champfund/donation-gateway/pkg/redis"
)

// RedisTokenCache keeps the OAuth bearer token in Redis so concurrent API
// instances share a single token per credential set.
type RedisTokenCache struct {
	redis redis.RedisAdapter
	key   string
}

func NewRedisTokenCache(adapter redis.RedisAdapter, key string) *RedisTokenCache {
	if key == "" {
		key = "daraja:access_token"
	}
	return &RedisTokenCache{redis: adapter, key: key}
}

func (c *RedisTokenCache) Get(ctx context.Context) (string, error) {
	b, err := c.redis.Get(c.key)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return "", nil
		}
		return "", err
	}
	return string(b), nil
}

func (c *RedisTokenCache) Put(ctx context.Context, token string, ttl time.Duration) error {
	return c.redis.Set(c.key, []byte(token), ttl)
}
