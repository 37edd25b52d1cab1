package bridge

import (
	"sync"

	"github.com/wabridge/bridge-server-go/internal/metrics"
)

// Registry holds at most one live session per user.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Get(userID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[userID]
}

// Set stores s for the user and returns the session it replaced, if any.
func (r *Registry) Set(userID string, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[userID]
	r.sessions[userID] = s
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	return prev
}

// Remove evicts the user's entry only while it still points at s, so a late
// callback from a replaced session cannot evict its successor.
func (r *Registry) Remove(userID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[userID]; !ok || cur != s {
		return false
	}
	delete(r.sessions, userID)
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the current sessions keyed by user id.
func (r *Registry) Snapshot() map[string]*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Session, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = s
	}
	return out
}
