package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"auth-lifecycle-engine/internal/delivery"
	"auth-lifecycle-engine/internal/otp/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a challenge repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const challengeColumns = `id, destination, channel, COALESCE(user_id, ''), code_hash,
	attempt_count, max_attempts, consumed, superseded, created_at, expires_at`

func scanChallenge(row interface{ Scan(...any) error }) (*domain.Challenge, error) {
	var c domain.Challenge
	var channel string
	err := row.Scan(&c.ID, &c.Destination, &channel, &c.UserID, &c.CodeHash,
		&c.AttemptCount, &c.MaxAttempts, &c.Consumed, &c.Superseded, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return nil, err
	}
	c.Channel = delivery.Channel(channel)
	return &c, nil
}

// Create persists the challenge. The partial unique index on active (destination,
// channel) rejects a second live row, so callers supersede before creating.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	uid := sql.NullString{String: c.UserID, Valid: c.UserID != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO challenges (id, destination, channel, user_id, code_hash,
			attempt_count, max_attempts, consumed, superseded, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.Destination, string(c.Channel), uid, c.CodeHash,
		c.AttemptCount, c.MaxAttempts, c.Consumed, c.Superseded, c.CreatedAt, c.ExpiresAt)
	return err
}

// GetActive returns the live challenge for (destination, channel), or nil if none.
func (r *PostgresRepository) GetActive(ctx context.Context, destination string, channel delivery.Channel) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+challengeColumns+`
		FROM challenges
		WHERE destination = $1 AND channel = $2 AND NOT consumed AND NOT superseded
	`, destination, string(channel))
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// SupersedeActive retires any live challenge for (destination, channel).
func (r *PostgresRepository) SupersedeActive(ctx context.Context, destination string, channel delivery.Channel) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE challenges SET superseded = TRUE
		WHERE destination = $1 AND channel = $2 AND NOT consumed AND NOT superseded
	`, destination, string(channel))
	return err
}

// GetLatestSuperseded returns the newest superseded challenge for (destination,
// channel), or nil if none.
func (r *PostgresRepository) GetLatestSuperseded(ctx context.Context, destination string, channel delivery.Channel) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+challengeColumns+`
		FROM challenges
		WHERE destination = $1 AND channel = $2 AND superseded
		ORDER BY created_at DESC
		LIMIT 1
	`, destination, string(channel))
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ChargeAttempt increments attempt_count under the liveness conditions and returns the
// updated row, or nil when the update matched nothing. The single UPDATE is the mutual
// exclusion point: Postgres row locking serializes concurrent verifiers.
func (r *PostgresRepository) ChargeAttempt(ctx context.Context, id string) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE challenges SET attempt_count = attempt_count + 1
		WHERE id = $1 AND NOT consumed AND NOT superseded AND attempt_count < max_attempts
		RETURNING `+challengeColumns+`
	`, id)
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// MarkConsumed consumes the challenge; returns false if it was already consumed.
func (r *PostgresRepository) MarkConsumed(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE challenges SET consumed = TRUE
		WHERE id = $1 AND NOT consumed
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountRequestsSince counts challenges created for destination after since.
func (r *PostgresRepository) CountRequestsSince(ctx context.Context, destination string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM challenges WHERE destination = $1 AND created_at > $2
	`, destination, since).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
