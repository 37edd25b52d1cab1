package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wabridge/bridge-server-go/internal/audit"
	"github.com/wabridge/bridge-server-go/internal/middleware"
	"github.com/wabridge/bridge-server-go/internal/service"
	"github.com/wabridge/bridge-server-go/internal/util"
)

type AuthService interface {
	Signup(ctx context.Context, params service.SignupParams) (*service.AuthResult, error)
	Signin(ctx context.Context, email, password string) (*service.AuthResult, error)
	Signout(ctx context.Context, token string) error
}

type AuthHandler struct {
	auth        AuthService
	requireAuth func(http.Handler) http.Handler
	loginLimit  func(http.Handler) http.Handler
	signupLimit func(http.Handler) http.Handler
}

func NewAuthHandler(
	auth AuthService,
	requireAuth func(http.Handler) http.Handler,
	loginLimit func(http.Handler) http.Handler,
	signupLimit func(http.Handler) http.Handler,
) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		requireAuth: requireAuth,
		loginLimit:  loginLimit,
		signupLimit: signupLimit,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.signupLimit).Post("/signup", h.Signup)
	r.With(h.loginLimit).Post("/signin", h.Signin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/signout", h.Signout)
		r.Get("/session", h.Session)
	})

	return r
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupParams
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:   audit.EventSignup,
		UserID: result.User.ID,
		Email:  util.MaskEmail(result.User.Email),
	})
	writeJSON(w, http.StatusOK, result)
}

// POST /api/auth/signin
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			audit.LogFromRequest(r, audit.Event{
				Type:  audit.EventLoginFailure,
				Email: util.MaskEmail(req.Email),
			})
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:   audit.EventLoginSuccess,
		UserID: result.User.ID,
		Email:  util.MaskEmail(result.User.Email),
	})
	writeJSON(w, http.StatusOK, result)
}

// POST /api/auth/signout
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	if err := h.auth.Signout(r.Context(), middleware.GetToken(r.Context())); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout, UserID: user.ID})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signed out successfully"})
}

// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": middleware.GetUser(r.Context())})
}
