package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wabridge/bridge-server-go/internal/database"
	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/model"
	redisclient "github.com/wabridge/bridge-server-go/internal/redis"
	"github.com/wabridge/bridge-server-go/internal/repository"
	"github.com/wabridge/bridge-server-go/internal/util"
)

var (
	ErrEmailExists        = apperrors.Store("User already registered", nil)
	ErrInvalidCredentials = apperrors.Unauthorized("Invalid login credentials")
)

// Claims are carried by every access token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Session is the token half of a sign-in response.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	ExpiresAt   int64  `json:"expires_at"`
}

type AuthResult struct {
	User    *model.User `json:"user"`
	Session *Session    `json:"session"`
}

type SignupParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AuthService struct {
	db       *database.DB
	users    repository.UserRepository
	profiles repository.ProfileRepository
	redis    *redisclient.Client
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthService(
	db *database.DB,
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	redisClient *redisclient.Client,
	secret string,
	ttl time.Duration,
) *AuthService {
	return &AuthService{
		db:       db,
		users:    users,
		profiles: profiles,
		redis:    redisClient,
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Signup creates the user and its profile row together and signs the user in.
func (s *AuthService) Signup(ctx context.Context, params SignupParams) (*AuthResult, error) {
	email := util.NormalizeEmail(params.Email)
	if !util.IsValidEmail(email) {
		return nil, apperrors.InvalidInput("email", "must be a valid address")
	}
	if !util.IsValidPassword(params.Password) {
		return nil, apperrors.InvalidInput("password", fmt.Sprintf("must be at least %d characters", util.MinPasswordLength))
	}

	hash, err := util.HashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var user *model.User
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		user, err = s.users.WithTx(tx).Create(ctx, model.CreateUserParams{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}

		var name *string
		if n := strings.TrimSpace(params.Name); n != "" {
			name = &n
		}
		_, err = s.profiles.WithTx(tx).Create(ctx, model.CreateProfileParams{
			ID:    user.ID,
			Email: email,
			Name:  name,
		})
		return err
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, apperrors.Store(err.Error(), err)
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	log.Info().Str("userId", user.ID).Str("email", util.MaskEmail(email)).Msg("user signed up")
	return &AuthResult{User: user, Session: session}, nil
}

func (s *AuthService) Signin(ctx context.Context, email, password string) (*AuthResult, error) {
	email = util.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Store(err.Error(), err)
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := s.users.TouchSignIn(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("userId", user.ID).Msg("failed to record sign in")
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Session: session}, nil
}

// Signout revokes the token until it would have expired anyway.
func (s *AuthService) Signout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}

	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, redisclient.RevokedTokenKey(claims.ID), claims.Subject, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	log.Info().Str("userId", claims.Subject).Msg("user signed out")
	return nil
}

// Authenticate resolves a bearer token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, *Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, nil, err
	}

	revoked, err := s.redis.Exists(ctx, redisclient.RevokedTokenKey(claims.ID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked > 0 {
		return nil, nil, apperrors.InvalidToken("Token has been revoked")
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, nil, apperrors.InvalidToken("User not found")
	}
	return user, claims, nil
}

func (s *AuthService) issue(user *model.User) (*Session, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int(s.ttl.Seconds()),
		ExpiresAt:   expiresAt.Unix(),
	}, nil
}

func (s *AuthService) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("Missing authentication token")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.InvalidToken("Invalid token")
	}
	if !util.IsValidUUID(claims.Subject) || claims.ID == "" {
		return nil, apperrors.InvalidToken("Invalid token")
	}
	return claims, nil
}
