// Package audit appends authentication-adjacent events to the append-only event log.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"auth-lifecycle-engine/internal/audit/domain"
	auditrepo "auth-lifecycle-engine/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context (e.g. forwarded headers
// captured by the hosting application). May be nil; then IP is recorded as "unknown".
type IPExtractor func(context.Context) string

// Recorder appends one audit event. Best-effort: failures are logged and never affect
// the write path that triggered them.
type Recorder struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	logger      *slog.Logger
	nowF        func() time.Time
}

// NewRecorder returns a Recorder that persists to repo and uses ipExtractor for client IP.
func NewRecorder(repo auditrepo.Repository, ipExtractor IPExtractor, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:        repo,
		ipExtractor: ipExtractor,
		logger:      logger,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// Record appends one audit event. Errors are logged and not returned.
func (r *Recorder) Record(ctx context.Context, actorRef string, action domain.Action, destination string, blocked bool) {
	if r == nil || r.repo == nil {
		return
	}
	ip := "unknown"
	if r.ipExtractor != nil {
		if got := r.ipExtractor(ctx); got != "" {
			ip = got
		}
	}
	e := &domain.Event{
		ID:          uuid.New().String(),
		ActorRef:    actorRef,
		Action:      action,
		Destination: destination,
		SourceIP:    ip,
		Blocked:     blocked,
		CreatedAt:   r.nowF(),
	}
	if err := r.repo.Append(ctx, e); err != nil {
		r.logger.Warn("audit append failed", "action", action, "error", err)
	}
}
