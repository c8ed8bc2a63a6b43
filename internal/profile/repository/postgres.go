package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"auth-lifecycle-engine/internal/profile/domain"
)

// SQLSTATE codes the reconciler cares about.
const (
	codeUniqueViolation     = "23505"
	codeFKViolation         = "23503" // referenced account row not yet visible
	codeSerializationFailed = "40001"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a profile repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// classify maps driver errors onto the repository error taxonomy.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return ErrDuplicate
		case codeFKViolation, codeSerializationFailed:
			return fmt.Errorf("%w: %s", ErrTransient, pgErr.Message)
		}
	}
	return err
}

// Create inserts the profile; duplicate and transient failures are classified for the
// reconciler.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (account_id, email, display_name, account_type, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.AccountID, p.Email, p.DisplayName, string(p.AccountType), p.Completed, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	return nil
}

// GetByAccountID returns the profile for accountID, or nil if not found.
func (r *PostgresRepository) GetByAccountID(ctx context.Context, accountID string) (*domain.Profile, error) {
	var p domain.Profile
	var accountType string
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, email, display_name, account_type, completed, created_at, updated_at
		FROM profiles
		WHERE account_id = $1
	`, accountID).Scan(&p.AccountID, &p.Email, &p.DisplayName, &accountType, &p.Completed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.AccountType = domain.AccountType(accountType)
	return &p, nil
}

// Update overwrites the mutable fields.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET email = $2, display_name = $3, account_type = $4, completed = $5, updated_at = $6
		WHERE account_id = $1
	`, p.AccountID, p.Email, p.DisplayName, string(p.AccountType), p.Completed, time.Now().UTC())
	return err
}

// SetCompleted flips the onboarding flag.
func (r *PostgresRepository) SetCompleted(ctx context.Context, accountID string, completed bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET completed = $2, updated_at = $3 WHERE account_id = $1
	`, accountID, completed, time.Now().UTC())
	return err
}
