package middleware

import (
	"net/http"
	"time"

	"github.com/wabridge/bridge-server-go/internal/audit"
	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/httputil"
)

const (
	loginMaxAttempts    = 5
	loginWindowDuration = time.Minute
)

// LoginRateLimiter limits sign-in attempts per client address on this instance.
type LoginRateLimiter struct {
	limiter *memoryLimiter
}

func NewLoginRateLimiter() *LoginRateLimiter {
	return &LoginRateLimiter{limiter: newMemoryLimiter()}
}

func (l *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r)

		res, _ := l.limiter.CheckLimit(r.Context(), "login:"+ip, loginMaxAttempts, loginWindowDuration)
		if !res.Allowed {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed, Reason: "signin"})
			w.Header().Set("Retry-After", "60")
			httputil.WriteError(w, apperrors.New(apperrors.ErrCodeRateLimitExceeded, "Too many login attempts. Please try again later."))
			return
		}

		next.ServeHTTP(w, r)
	})
}
