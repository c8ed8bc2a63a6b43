package repository

import (
	"context"
	"database/sql"
	"time"

	"auth-lifecycle-engine/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit event repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append persists the event. The event must have ID set.
func (r *PostgresRepository) Append(ctx context.Context, e *domain.Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, actor_ref, action, destination, source_ip, blocked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ActorRef, string(e.Action), e.Destination, e.SourceIP, e.Blocked, e.CreatedAt)
	return err
}

func (r *PostgresRepository) scanEvents(rows *sql.Rows) ([]*domain.Event, error) {
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		var e domain.Event
		var action string
		if err := rows.Scan(&e.ID, &e.ActorRef, &action, &e.Destination, &e.SourceIP, &e.Blocked, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = domain.Action(action)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ListSince returns events created after since, oldest first.
func (r *PostgresRepository) ListSince(ctx context.Context, since time.Time) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor_ref, action, destination, source_ip, blocked, created_at
		FROM audit_events
		WHERE created_at > $1
		ORDER BY created_at ASC
	`, since)
	if err != nil {
		return nil, err
	}
	return r.scanEvents(rows)
}

// ListByDestination returns the most recent events for destination, newest first.
func (r *PostgresRepository) ListByDestination(ctx context.Context, destination string, limit int) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor_ref, action, destination, source_ip, blocked, created_at
		FROM audit_events
		WHERE destination = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, destination, limit)
	if err != nil {
		return nil, err
	}
	return r.scanEvents(rows)
}

// ListBlockedByDestination returns the most recent blocked events for destination.
func (r *PostgresRepository) ListBlockedByDestination(ctx context.Context, destination string, limit int) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor_ref, action, destination, source_ip, blocked, created_at
		FROM audit_events
		WHERE destination = $1 AND blocked
		ORDER BY created_at DESC
		LIMIT $2
	`, destination, limit)
	if err != nil {
		return nil, err
	}
	return r.scanEvents(rows)
}

// StatsSince returns total and blocked counts for events after since.
func (r *PostgresRepository) StatsSince(ctx context.Context, since time.Time) (WindowStats, error) {
	var s WindowStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE blocked)
		FROM audit_events
		WHERE created_at > $1
	`, since).Scan(&s.Total, &s.Blocked)
	return s, err
}

// CountBlockedSince returns how many blocked events destination accrued after since.
func (r *PostgresRepository) CountBlockedSince(ctx context.Context, destination string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM audit_events
		WHERE destination = $1 AND blocked AND created_at > $2
	`, destination, since).Scan(&n)
	return n, err
}

// BlockedOnlyDestinations returns destinations with exclusively blocked history whose
// latest blocked event is before cutoff.
func (r *PostgresRepository) BlockedOnlyDestinations(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT destination
		FROM audit_events
		WHERE destination <> ''
		GROUP BY destination
		HAVING BOOL_AND(blocked) AND MAX(created_at) < $1
		ORDER BY MAX(created_at) DESC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
