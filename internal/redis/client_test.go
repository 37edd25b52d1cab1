package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("connects to reachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)

		client, err := NewClient("redis://" + mr.Addr())
		require.NoError(t, err)
		defer client.Close()
	})

	t.Run("rejects invalid url", func(t *testing.T) {
		_, err := NewClient("not-a-url")
		assert.Error(t, err)
	})
}

func TestKeyNames(t *testing.T) {
	assert.Equal(t, "wa:room:u1", UserChannel("u1"))
	assert.Equal(t, "auth:revoked:j1", RevokedTokenKey("j1"))
	assert.Equal(t, "ratelimit:user:u1", RateLimitKey("user:u1"))
}
