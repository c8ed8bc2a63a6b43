package domain

import (
	"time"

	"auth-lifecycle-engine/internal/delivery"
)

// State describes where a challenge is in its lifecycle. Terminal states are never
// reused; a fresh request always creates a new challenge.
type State string

const (
	StateActive     State = "active"
	StateConsumed   State = "consumed"
	StateExhausted  State = "exhausted"
	StateExpired    State = "expired"
	StateSuperseded State = "superseded"
)

// Challenge represents one outstanding OTP issuance-to-verification cycle
// (stored in the challenges table). The raw code is never stored, only CodeHash.
type Challenge struct {
	ID           string
	Destination  string
	Channel      delivery.Channel
	UserID       string // optional; set when the challenge is tied to a known account
	CodeHash     string
	AttemptCount int
	MaxAttempts  int
	Consumed     bool
	Superseded   bool
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// State returns the challenge state as of now. Consumed and superseded take
// precedence over expiry so a post-mortem row reads the way it terminated.
func (c *Challenge) State(now time.Time) State {
	switch {
	case c.Consumed:
		return StateConsumed
	case c.Superseded:
		return StateSuperseded
	case now.After(c.ExpiresAt):
		return StateExpired
	case c.AttemptCount >= c.MaxAttempts:
		return StateExhausted
	default:
		return StateActive
	}
}

// AttemptsRemaining returns how many verify attempts are left.
func (c *Challenge) AttemptsRemaining() int {
	if r := c.MaxAttempts - c.AttemptCount; r > 0 {
		return r
	}
	return 0
}
