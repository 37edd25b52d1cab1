package bridge

import "github.com/wabridge/bridge-server-go/internal/model"

// State is where a session is in its lifecycle.
type State string

const (
	StateConnecting      State = "connecting"
	StateAwaitingPairing State = "awaiting_pairing"
	StateReady           State = "ready"
	StateDisconnected    State = "disconnected"
	StateFailed          State = "failed"
)

var transitions = map[State][]State{
	StateConnecting:      {StateAwaitingPairing, StateReady, StateDisconnected, StateFailed},
	StateAwaitingPairing: {StateAwaitingPairing, StateReady, StateDisconnected, StateFailed},
	StateReady:           {StateDisconnected, StateFailed},
}

// CanTransition reports whether next may follow s. Terminal states have no successors.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// Persisted maps the state to the stored session status.
func (s State) Persisted() model.SessionStatus {
	switch s {
	case StateReady:
		return model.SessionStatusConnected
	case StateDisconnected:
		return model.SessionStatusDisconnected
	case StateFailed:
		return model.SessionStatusFailed
	default:
		return model.SessionStatusConnecting
	}
}
