package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/champfund/donation-gateway/pkg/redis"
)

func newTestTokenCache(t *testing.T, key string) *RedisTokenCache {
	t.Helper()

	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return NewRedisTokenCache(adapter, key)
}

func TestRedisTokenCache(t *testing.T) {
	t.Run("empty cache returns no token", func(t *testing.T) {
		cache := newTestTokenCache(t, "")

		token, err := cache.Get(context.Background())
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("round trip", func(t *testing.T) {
		cache := newTestTokenCache(t, "")

		require.NoError(t, cache.Put(context.Background(), "bearer-abc", time.Hour))

		token, err := cache.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "bearer-abc", token)
	})

	t.Run("custom key is honoured", func(t *testing.T) {
		cache := newTestTokenCache(t, "sandbox:token")
		assert.Equal(t, "sandbox:token", cache.key)

		require.NoError(t, cache.Put(context.Background(), "tok", time.Minute))
		token, err := cache.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok", token)
	})

	t.Run("default key applied when blank", func(t *testing.T) {
		cache := newTestTokenCache(t, "")
		assert.Equal(t, "daraja:access_token", cache.key)
	})
}
