// Package ratelimit is the storage-backed rate-limit read surface consumed by the
// hosting application. State lives in the audit log, never in process memory, so any
// number of engine instances agree on the same counts.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	auditdomain "auth-lifecycle-engine/internal/audit/domain"
	auditrepo "auth-lifecycle-engine/internal/audit/repository"
)

// DefaultBlockThreshold is how many blocked events within the window flag a
// destination as rate limited.
const DefaultBlockThreshold = 3

// Limiter answers rate-limit questions from the audit log.
type Limiter struct {
	repo auditrepo.Repository
	// blockThreshold is the blocked-event count at which IsRateLimited reports true.
	blockThreshold int
	nowF           func() time.Time
}

// NewLimiter returns a Limiter over the given audit repository. threshold <= 0 uses
// DefaultBlockThreshold.
func NewLimiter(repo auditrepo.Repository, threshold int) *Limiter {
	if threshold <= 0 {
		threshold = DefaultBlockThreshold
	}
	return &Limiter{
		repo:           repo,
		blockThreshold: threshold,
		nowF:           func() time.Time { return time.Now().UTC() },
	}
}

// IsRateLimited reports whether destination accumulated enough blocked events within
// the last withinHours to be held off.
func (l *Limiter) IsRateLimited(ctx context.Context, destination string, withinHours int) (bool, error) {
	if withinHours <= 0 {
		withinHours = 1
	}
	since := l.nowF().Add(-time.Duration(withinHours) * time.Hour)
	n, err := l.repo.CountBlockedSince(ctx, destination, since)
	if err != nil {
		return false, fmt.Errorf("ratelimit: count blocked: %w", err)
	}
	return n >= l.blockThreshold, nil
}

// BlockedHistory returns the most recent blocked events for destination, newest first,
// for support and admin tooling.
func (l *Limiter) BlockedHistory(ctx context.Context, destination string, limit int) ([]*auditdomain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	events, err := l.repo.ListBlockedByDestination(ctx, destination, limit)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: list blocked events: %w", err)
	}
	return events, nil
}
