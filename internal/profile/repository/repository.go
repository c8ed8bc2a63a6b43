package repository

import (
	"context"
	"errors"

	"auth-lifecycle-engine/internal/profile/domain"
)

// ErrDuplicate reports that a profile row for the account already exists. The
// reconciler treats this as success-by-adoption, never as a caller-visible error.
var ErrDuplicate = errors.New("profile repository: profile already exists")

// ErrTransient wraps storage failures worth retrying, e.g. the referenced account row
// not yet visible to this transaction.
var ErrTransient = errors.New("profile repository: transient storage failure")

// Repository defines persistence for identity profiles.
type Repository interface {
	// Create inserts the profile. Returns ErrDuplicate when the uniqueness constraint
	// on account_id rejects the row; errors wrapping ErrTransient when a retry may
	// succeed.
	Create(ctx context.Context, p *domain.Profile) error

	// GetByAccountID returns the profile for accountID, or nil if none.
	GetByAccountID(ctx context.Context, accountID string) (*domain.Profile, error)

	// Update overwrites the mutable fields (email, display name, type, completed).
	Update(ctx context.Context, p *domain.Profile) error

	// SetCompleted flips the onboarding flag.
	SetCompleted(ctx context.Context, accountID string, completed bool) error
}
