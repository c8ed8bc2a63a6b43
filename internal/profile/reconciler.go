// Package profile guarantees exactly one identity profile row per authenticated
// account, even when a storage-level provisioning trigger and this application path
// race to create it.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"auth-lifecycle-engine/internal/profile/domain"
	"auth-lifecycle-engine/internal/profile/repository"
	"auth-lifecycle-engine/internal/telemetry"
)

// maxAttempts is the total create attempts per Reconcile call; backoffUnit scales the
// delay between them (attempt * backoffUnit: 500ms, then 1s).
const (
	maxAttempts = 3
	backoffUnit = 500 * time.Millisecond
)

// ErrReconcileDeferred reports that all attempts failed. It is a warning, not a
// failure: callers must not fail the user-visible sign-in/sign-up over it, because the
// next authenticated request reconciles again and the gap self-heals.
var ErrReconcileDeferred = errors.New("profile: reconcile deferred to next authenticated request")

// Seed carries the defaults for a first-time profile, taken from account metadata.
type Seed struct {
	Email       string
	DisplayName string
	AccountType domain.AccountType
}

// Reconciler converges concurrent profile-creation attempts onto the single unique row.
type Reconciler struct {
	repo    repository.Repository
	metrics *telemetry.Metrics
	logger  *slog.Logger
	nowF    func() time.Time
	sleepF  func(context.Context, time.Duration) error
}

// NewReconciler returns a Reconciler with the given dependencies. metrics may be nil;
// logger falls back to slog.Default.
func NewReconciler(repo repository.Repository, metrics *telemetry.Metrics, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		nowF:    func() time.Time { return time.Now().UTC() },
		sleepF:  sleepCtx,
	}
}

// Reconcile ensures a profile row exists for accountID and returns it.
//
// The strategy is optimistic-create-then-fetch-on-conflict: losing the race against the
// storage trigger (or a concurrent caller) is success, the loser adopts the winner's
// row. Transient storage failures are retried with attempt*500ms backoff; when every
// attempt fails the caller gets ErrReconcileDeferred and must carry on. An invalid
// seed is surfaced immediately and never retried.
func (r *Reconciler) Reconcile(ctx context.Context, accountID string, seed Seed) (*domain.Profile, error) {
	template := domain.Profile{
		AccountID:   accountID,
		Email:       seed.Email,
		DisplayName: seed.DisplayName,
		AccountType: seed.AccountType,
	}
	if err := template.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		p := template
		p.CreatedAt = r.nowF()
		p.UpdatedAt = p.CreatedAt
		err := r.repo.Create(ctx, &p)
		if err == nil {
			r.metrics.ReconcileOutcome(ctx, "created")
			return &p, nil
		}
		if errors.Is(err, repository.ErrDuplicate) {
			existing, fetchErr := r.repo.GetByAccountID(ctx, accountID)
			if fetchErr == nil && existing != nil {
				r.metrics.ReconcileOutcome(ctx, "adopted")
				return existing, nil
			}
			// Row vanished between conflict and fetch; treat as transient.
			lastErr = fetchErr
			if lastErr == nil {
				lastErr = err
			}
		} else {
			lastErr = err
		}

		if attempt < maxAttempts {
			if serr := r.sleepF(ctx, time.Duration(attempt)*backoffUnit); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	r.metrics.ReconcileOutcome(ctx, "deferred")
	r.logger.Warn("profile reconcile deferred", "account_id", accountID, "error", lastErr)
	return nil, fmt.Errorf("%w: %w", ErrReconcileDeferred, lastErr)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
