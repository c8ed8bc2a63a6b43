package repository

import (
	"context"
	"time"

	"auth-lifecycle-engine/internal/delivery"
	"auth-lifecycle-engine/internal/otp/domain"
)

// DefaultChallengeTTL is the default challenge expiry.
const DefaultChallengeTTL = 10 * time.Minute

// DefaultMaxAttempts is the default verify-attempt budget per challenge.
const DefaultMaxAttempts = 5

// Repository defines persistence for OTP challenges. All mutating operations rely on
// storage-level conditional writes so concurrent engine instances stay correct without
// in-process locks.
type Repository interface {
	// Create persists a new challenge. The challenge must have ID set. Fails if an
	// active challenge for the same (destination, channel) still exists.
	Create(ctx context.Context, c *domain.Challenge) error

	// GetActive returns the unconsumed, unsuperseded challenge for (destination,
	// channel), or nil if none. Expiry and exhaustion are not filtered here; the
	// manager decides how to report them.
	GetActive(ctx context.Context, destination string, channel delivery.Channel) (*domain.Challenge, error)

	// SupersedeActive marks any active challenge for (destination, channel) as
	// superseded. No-op when none exists.
	SupersedeActive(ctx context.Context, destination string, channel delivery.Channel) error

	// GetLatestSuperseded returns the most recently created superseded challenge for
	// (destination, channel), or nil if none. The manager uses it to tell a code from
	// a replaced challenge apart from a plain wrong code.
	GetLatestSuperseded(ctx context.Context, destination string, channel delivery.Channel) (*domain.Challenge, error)

	// ChargeAttempt atomically increments attempt_count for the challenge if it is
	// still live (not consumed, not superseded, attempts left) and returns the updated
	// row. Returns nil when the conditional update matched no row; the caller
	// re-fetches to find out why. Two concurrent calls are both charged.
	ChargeAttempt(ctx context.Context, id string) (*domain.Challenge, error)

	// MarkConsumed marks the challenge consumed if it is not already. Returns false
	// when another verifier consumed it first.
	MarkConsumed(ctx context.Context, id string) (bool, error)

	// CountRequestsSince returns how many challenges were created for destination
	// after since, across channels. Backs the storage-level rate-limit window.
	CountRequestsSince(ctx context.Context, destination string, since time.Time) (int, error)
}
