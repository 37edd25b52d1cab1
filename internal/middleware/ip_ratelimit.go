package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wabridge/bridge-server-go/internal/audit"
	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/httputil"
)

// IPRateLimitMiddleware limits unauthenticated endpoints by client address.
// Requests pass when Redis is unreachable.
type IPRateLimitMiddleware struct {
	limiter SlidingWindowLimiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewIPRateLimitMiddleware(limiter SlidingWindowLimiter, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r)

		key := fmt.Sprintf("ip:%s:%s", m.prefix, ip)
		res, err := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)
		if err != nil {
			log.Warn().Err(err).Str("prefix", m.prefix).Msg("ip rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if !res.Allowed {
			secondsLeft := int(time.Until(res.ResetAt).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed, Reason: m.prefix})
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
