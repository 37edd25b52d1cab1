package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wabridge/bridge-server-go/internal/service"
)

const (
	memoryLimiterKeys = 10000
	memoryLimiterTTL  = 5 * time.Minute
)

// memoryLimiter is a per-instance sliding window limiter with the same
// contract as service.RateLimiter. Idle keys expire from the LRU, so windows
// longer than memoryLimiterTTL are not tracked reliably.
type memoryLimiter struct {
	mu   sync.Mutex
	hits *expirable.LRU[string, []time.Time]
	now  func() time.Time
}

func newMemoryLimiter() *memoryLimiter {
	return &memoryLimiter{
		hits: expirable.NewLRU[string, []time.Time](memoryLimiterKeys, nil, memoryLimiterTTL),
		now:  time.Now,
	}
}

func (l *memoryLimiter) CheckLimit(_ context.Context, key string, limit int, window time.Duration) (service.RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start := now.Add(-window)

	hits, _ := l.hits.Get(key)
	kept := make([]time.Time, 0, len(hits)+1)
	for _, ts := range hits {
		if ts.After(start) {
			kept = append(kept, ts)
		}
	}

	resetAt := now.Add(window)
	if len(kept) > 0 {
		resetAt = kept[0].Add(window)
	}

	if len(kept) >= limit {
		l.hits.Add(key, kept)
		return service.RateLimitResult{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	kept = append(kept, now)
	l.hits.Add(key, kept)
	return service.RateLimitResult{Allowed: true, Remaining: limit - len(kept), ResetAt: resetAt}, nil
}
