package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "jwt-secret", "password",
}

type Config struct {
	Port                      int    `env:"PORT" envDefault:"3001"`
	AppEnv                    string `env:"APP_ENV" envDefault:"production"`
	DatabaseURL               string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL                  string `env:"REDIS_URL,required,notEmpty"`
	JWTSecret                 string `env:"JWT_SECRET,required,notEmpty"`
	AccessTokenTTLMinutes     int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"10080"`
	FrontendURL               string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	AuthDataDir               string `env:"AUTH_DATA_DIR" envDefault:"./.wa_auth"`
	MaxSessions               int    `env:"MAX_SESSIONS" envDefault:"100"`
	AuthProfileRetentionHours int    `env:"AUTH_PROFILE_RETENTION_HOURS" envDefault:"72"`
	RateLimitPerMin           int    `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	LogLevel                  string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c *Config) AuthProfileRetention() time.Duration {
	return time.Duration(c.AuthProfileRetentionHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// IsDevelopment reports whether internal error details may be exposed to clients.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

func (c *Config) Validate(isProduction bool) error {
	if c.MaxSessions < 0 {
		return fmt.Errorf("MAX_SESSIONS must be >= 0 (0 disables the limit)")
	}
	if c.AccessTokenTTLMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must be positive")
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.MaxSessions == 0 {
			log.Warn().Msg("MAX_SESSIONS=0 in production: concurrent WhatsApp clients are unbounded")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
