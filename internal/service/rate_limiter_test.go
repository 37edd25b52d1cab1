package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/wabridge/bridge-server-go/internal/redis"
)

func newTestRedis(t *testing.T) (*redisclient.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisclient.Wrap(client), mr
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		client, _ := newTestRedis(t)
		limiter := NewRateLimiter(client)

		for i := 0; i < 3; i++ {
			res, err := limiter.CheckLimit(ctx, "user:1", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed, "request %d should be allowed", i+1)
			assert.Equal(t, 2-i, res.Remaining)
		}

		res, err := limiter.CheckLimit(ctx, "user:1", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.True(t, res.ResetAt.After(time.Now().Add(-time.Second)))
	})

	t.Run("window slides", func(t *testing.T) {
		client, _ := newTestRedis(t)
		limiter := NewRateLimiter(client)
		now := time.Now()
		limiter.now = func() time.Time { return now }

		res, _ := limiter.CheckLimit(ctx, "user:2", 1, 10*time.Second)
		assert.True(t, res.Allowed)
		res, _ = limiter.CheckLimit(ctx, "user:2", 1, 10*time.Second)
		assert.False(t, res.Allowed)

		now = now.Add(11 * time.Second)
		res, _ = limiter.CheckLimit(ctx, "user:2", 1, 10*time.Second)
		assert.True(t, res.Allowed)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		client, mr := newTestRedis(t)
		limiter := NewRateLimiter(client)

		res, _ := limiter.CheckLimit(ctx, "a", 1, time.Minute)
		assert.True(t, res.Allowed)
		res, _ = limiter.CheckLimit(ctx, "b", 1, time.Minute)
		assert.True(t, res.Allowed)
		assert.True(t, mr.Exists("ratelimit:a"))
	})

	t.Run("redis failure is reported", func(t *testing.T) {
		client, mr := newTestRedis(t)
		limiter := NewRateLimiter(client)
		mr.Close()

		_, err := limiter.CheckLimit(ctx, "c", 1, time.Minute)
		assert.Error(t, err)
	})
}
