package domain

import "time"

// CallState is the lifecycle state of one call session.
// Ended and Disconnected are terminal: once reached, no further transition applies.
type CallState string

const (
	CallInitiated    CallState = "initiated"
	CallAnswered     CallState = "answered"
	CallEnded        CallState = "ended"
	CallDisconnected CallState = "disconnected"
)

// Terminal reports whether the state is absorbing.
func (s CallState) Terminal() bool {
	return s == CallEnded || s == CallDisconnected
}

// Call is the persisted record of one call between two users.
type Call struct {
	ID        string
	CallerID  string
	CalleeID  string
	Status    CallState
	CreatedAt time.Time
	UpdatedAt time.Time
}
