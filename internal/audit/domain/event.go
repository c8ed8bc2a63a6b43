package domain

import "time"

// Action classifies an authentication-adjacent audit event.
type Action string

const (
	ActionSignupAttempt       Action = "signup_attempt"
	ActionSignupBlocked       Action = "signup_blocked"
	ActionConfirmationRequest Action = "confirmation_request"
	ActionOTPRequest          Action = "otp_request"
	ActionOTPVerifySuccess    Action = "otp_verify_success"
	ActionOTPVerifyFailure    Action = "otp_verify_failure"
)

// Event is an immutable, append-only record of an authentication-adjacent action.
// The engine never mutates or deletes events; they are read-only input to the
// anomaly detector and the rate-limit surface.
type Event struct {
	ID string
	// ActorRef is an opaque identifier that may or may not correspond to a real account.
	ActorRef    string
	Action      Action
	Destination string
	SourceIP    string
	Blocked     bool
	CreatedAt   time.Time
}
