package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redisclient "github.com/wabridge/bridge-server-go/internal/redis"
)

// rateLimitScript is a Lua script for sliding window rate limiting.
// Returns {allowed, remaining, resetAt}.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

return {1, limit - count - 1, now + window}
`)

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a sliding window limiter shared by every instance through Redis.
type RateLimiter struct {
	client *redisclient.Client
	now    func() time.Time
}

func NewRateLimiter(client *redisclient.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// CheckLimit records one hit on key and reports whether it fits in the window.
func (rl *RateLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	now := rl.now().Unix()

	result, err := rateLimitScript.Run(
		ctx,
		rl.client,
		[]string{redisclient.RateLimitKey(key)},
		now,
		int64(window.Seconds()),
		limit,
	).Int64Slice()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(result) != 3 {
		return RateLimitResult{}, fmt.Errorf("unexpected rate limit result length %d", len(result))
	}

	return RateLimitResult{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
		ResetAt:   time.Unix(result[2], 0),
	}, nil
}
