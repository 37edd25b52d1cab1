package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3001}
		assert.Equal(t, ":3001", cfg.Addr())
	})

	t.Run("AccessTokenTTL converts minutes to duration", func(t *testing.T) {
		cfg := &Config{AccessTokenTTLMinutes: 90}
		assert.Equal(t, 90*time.Minute, cfg.AccessTokenTTL())
	})

	t.Run("AuthProfileRetention converts hours to duration", func(t *testing.T) {
		cfg := &Config{AuthProfileRetentionHours: 72}
		assert.Equal(t, 72*time.Hour, cfg.AuthProfileRetention())
	})

	t.Run("IsDevelopment is case insensitive", func(t *testing.T) {
		assert.True(t, (&Config{AppEnv: "Development"}).IsDevelopment())
		assert.False(t, (&Config{AppEnv: "production"}).IsDevelopment())
	})
}

func TestValidate(t *testing.T) {
	strong := "0123456789abcdef0123456789abcdef"

	t.Run("accepts defaults outside production", func(t *testing.T) {
		cfg := &Config{JWTSecret: "short", MaxSessions: 100, AccessTokenTTLMinutes: 10}
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("rejects short secret in production", func(t *testing.T) {
		cfg := &Config{JWTSecret: "short", MaxSessions: 100, AccessTokenTTLMinutes: 10}
		err := cfg.Validate(true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("accepts strong secret in production", func(t *testing.T) {
		cfg := &Config{JWTSecret: strong, RedisURL: "rediss://r", MaxSessions: 10, AccessTokenTTLMinutes: 10}
		assert.NoError(t, cfg.Validate(true))
	})

	t.Run("rejects negative session limit", func(t *testing.T) {
		cfg := &Config{JWTSecret: strong, MaxSessions: -1, AccessTokenTTLMinutes: 10}
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects non-positive token ttl", func(t *testing.T) {
		cfg := &Config{JWTSecret: strong, MaxSessions: 1}
		assert.Error(t, cfg.Validate(false))
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads config with defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("JWT_SECRET", "secret")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3001, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, 10080, cfg.AccessTokenTTLMinutes)
		assert.Equal(t, "./.wa_auth", cfg.AuthDataDir)
		assert.Equal(t, 100, cfg.MaxSessions)
		assert.Equal(t, "http://localhost:3000", cfg.FrontendURL)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("PORT", "4000")
		t.Setenv("MAX_SESSIONS", "5")
		t.Setenv("AUTH_DATA_DIR", "/var/lib/wa")
		t.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 4000, cfg.Port)
		assert.Equal(t, 5, cfg.MaxSessions)
		assert.Equal(t, "/var/lib/wa", cfg.AuthDataDir)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails without required DATABASE_URL", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("JWT_SECRET", "secret")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails without required JWT_SECRET", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("JWT_SECRET", "")

		_, err := Load()
		assert.Error(t, err)
	})
}
