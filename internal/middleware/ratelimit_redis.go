package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wabridge/bridge-server-go/internal/audit"
	"github.com/wabridge/bridge-server-go/internal/config"
	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/httputil"
	"github.com/wabridge/bridge-server-go/internal/service"
)

const rateLimitWindow = 60 * time.Second

type SlidingWindowLimiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (service.RateLimitResult, error)
}

// RedisRateLimitMiddleware limits each authenticated user across instances.
// While Redis is unreachable it falls back to a per-instance limiter.
type RedisRateLimitMiddleware struct {
	limiter  SlidingWindowLimiter
	fallback SlidingWindowLimiter
	limit    int
}

func NewRedisRateLimitMiddleware(limiter SlidingWindowLimiter, limit int) *RedisRateLimitMiddleware {
	if limit <= 0 {
		limit = config.DefaultRateLimitPerMin
	}
	return &RedisRateLimitMiddleware{
		limiter:  limiter,
		fallback: newMemoryLimiter(),
		limit:    limit,
	}
}

func (m *RedisRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := "user:" + user.ID
		res, err := m.limiter.CheckLimit(r.Context(), key, m.limit, rateLimitWindow)
		if err != nil {
			log.Warn().Err(err).Str("userId", user.ID).Msg("redis rate limit check failed, using local limiter")
			res, _ = m.fallback.CheckLimit(r.Context(), key, m.limit, rateLimitWindow)
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed, UserID: user.ID})
			w.Header().Set("Retry-After", "60")
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
