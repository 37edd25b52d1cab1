package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := &Session{userID: "u1"}
	b := &Session{userID: "u1"}

	assert.Nil(t, r.Get("u1"))
	assert.Nil(t, r.Set("u1", a))
	assert.Same(t, a, r.Get("u1"))
	assert.Equal(t, 1, r.Len())

	assert.Same(t, a, r.Set("u1", b))
	assert.Equal(t, 1, r.Len())

	assert.False(t, r.Remove("u1", a), "stale handle must not evict")
	assert.Same(t, b, r.Get("u1"))

	snap := r.Snapshot()
	assert.Len(t, snap, 1)

	assert.True(t, r.Remove("u1", b))
	assert.Equal(t, 0, r.Len())
	assert.Len(t, snap, 1)
}
