package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wabridge/bridge-server-go/internal/audit"
	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/httputil"
	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/service"
)

type contextKey string

const (
	UserContextKey  contextKey = "user"
	TokenContextKey contextKey = "token"
)

// WebSocketTokenProtocol prefixes the token in Sec-WebSocket-Protocol for
// browsers that cannot set headers on the upgrade request.
const WebSocketTokenProtocol = "bearer"

func GetUser(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserContextKey).(*model.User); ok {
		return user
	}
	return nil
}

// GetToken returns the raw bearer token the request was authenticated with.
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}

// WithUser attaches an authenticated user to ctx.
func WithUser(ctx context.Context, user *model.User, token string) context.Context {
	ctx = context.WithValue(ctx, UserContextKey, user)
	return context.WithValue(ctx, TokenContextKey, token)
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, *service.Claims, error)
}

type AuthMiddleware struct {
	auth        Authenticator
	allowSocket bool
}

// NewAuthMiddleware accepts only the Authorization header.
func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// NewSocketAuthMiddleware also accepts the token query parameter and the
// WebSocket subprotocol, for upgrade and event-stream requests.
func NewSocketAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth, allowSocket: true}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && m.allowSocket {
			token = socketToken(r)
		}
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		user, _, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			if apperrors.IsAppError(err) {
				audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure, Reason: err.Error()})
			} else {
				log.Error().Err(err).Msg("auth middleware: authentication error")
			}
			httputil.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, token)))
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

func socketToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	// Sec-WebSocket-Protocol: bearer, <token>
	protocols := strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",")
	for i := 0; i+1 < len(protocols); i++ {
		if strings.TrimSpace(protocols[i]) == WebSocketTokenProtocol {
			return strings.TrimSpace(protocols[i+1])
		}
	}
	return ""
}
