package repository

import (
	"context"
	"time"

	"auth-lifecycle-engine/internal/audit/domain"
)

// WindowStats is the aggregate the detector and health surface compute over a window.
type WindowStats struct {
	Total   int
	Blocked int
}

// Repository defines persistence for audit events. Append-only: there is no update or
// delete.
type Repository interface {
	// Append persists one event. The event must have ID set.
	Append(ctx context.Context, e *domain.Event) error

	// ListSince returns all events created after since, oldest first.
	ListSince(ctx context.Context, since time.Time) ([]*domain.Event, error)

	// ListByDestination returns the most recent events for destination, newest first,
	// capped at limit.
	ListByDestination(ctx context.Context, destination string, limit int) ([]*domain.Event, error)

	// ListBlockedByDestination is ListByDestination restricted to blocked events.
	ListBlockedByDestination(ctx context.Context, destination string, limit int) ([]*domain.Event, error)

	// StatsSince returns total and blocked counts for events after since.
	StatsSince(ctx context.Context, since time.Time) (WindowStats, error)

	// CountBlockedSince returns how many blocked events destination accrued after since.
	CountBlockedSince(ctx context.Context, destination string, since time.Time) (int, error)

	// BlockedOnlyDestinations returns destinations whose history is exclusively blocked
	// events and whose most recent blocked event is before cutoff: the rate-limit
	// window has lapsed and a retry is safe.
	BlockedOnlyDestinations(ctx context.Context, cutoff time.Time) ([]string, error)
}
