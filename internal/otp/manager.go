// Package otp owns the OTP challenge lifecycle: issuing codes, delivering them through
// the dispatcher, and verifying submissions against the challenge store.
package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditdomain "auth-lifecycle-engine/internal/audit/domain"
	"auth-lifecycle-engine/internal/delivery"
	"auth-lifecycle-engine/internal/otp/domain"
	"auth-lifecycle-engine/internal/otp/repository"
	"auth-lifecycle-engine/internal/telemetry"
)

// Sentinel errors for challenge request and verification. NotFound, Expired, Exhausted,
// and InvalidCodeError are expected user-facing outcomes, not exceptional conditions.
var (
	ErrMalformedCode  = errors.New("otp: code must be numeric and of the configured length")
	ErrRateLimited    = errors.New("otp: too many challenge requests for destination")
	ErrDeliveryFailed = errors.New("otp: delivery failed")
	ErrNotFound       = errors.New("otp: no active challenge")
	ErrExpired        = errors.New("otp: challenge expired")
	ErrExhausted      = errors.New("otp: challenge attempts exhausted")
)

// InvalidCodeError reports a wrong code and how many attempts the caller has left.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("otp: invalid code (%d attempts remaining)", e.AttemptsRemaining)
}

// Recorder is the audit hook the manager needs. Best-effort; implementations never
// return errors to the caller.
type Recorder interface {
	Record(ctx context.Context, actorRef string, action auditdomain.Action, destination string, blocked bool)
}

// Config holds per-manager tunables. Zero values fall back to the documented defaults.
type Config struct {
	// TTL is the challenge lifetime. Default 10 minutes.
	TTL time.Duration
	// MaxAttempts is the verify budget per challenge. Default 5.
	MaxAttempts int
	// CodeLength is the number of digits per code. Default 6.
	CodeLength int
	// HashSecret keys the code hash. Required.
	HashSecret string
	// RequestsPerWindow caps challenge requests per destination inside RateWindow.
	// 0 disables the cap.
	RequestsPerWindow int
	// RateWindow is the rate-limit window. Default 1 hour.
	RateWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = repository.DefaultChallengeTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = repository.DefaultMaxAttempts
	}
	if c.CodeLength <= 0 {
		c.CodeLength = 6
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Hour
	}
	return c
}

// VerifyResult is the outcome of a successful verification.
type VerifyResult struct {
	ChallengeID string
	// UserID is the account the challenge was tied to, if any.
	UserID string
}

// Manager generates, delivers, and verifies OTP challenges.
type Manager struct {
	repo       repository.Repository
	dispatcher delivery.Dispatcher
	recorder   Recorder
	dev        *DevStore
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	cfg        Config
	nowF       func() time.Time
}

// NewManager returns a Manager with the given dependencies. recorder, dev, and metrics
// may be nil; logger falls back to slog.Default.
func NewManager(repo repository.Repository, dispatcher delivery.Dispatcher, recorder Recorder,
	dev *DevStore, metrics *telemetry.Metrics, logger *slog.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:       repo,
		dispatcher: dispatcher,
		recorder:   recorder,
		dev:        dev,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// RequestChallenge supersedes any live challenge for (destination, channel), creates a
// fresh one with a fresh attempt budget, and dispatches the raw code.
//
// On delivery failure the challenge is returned together with ErrDeliveryFailed: the
// row was already committed, so a later verify against it still works and a retry by
// the caller goes through the rate limit rather than silently double-delivering.
// Cancelling ctx mid-dispatch abandons only the wait for the provider; the challenge
// stays valid.
func (m *Manager) RequestChallenge(ctx context.Context, destination string, channel delivery.Channel, userID string) (*domain.Challenge, error) {
	if err := delivery.ValidateDestination(destination, channel); err != nil {
		return nil, err
	}

	now := m.nowF()
	if m.cfg.RequestsPerWindow > 0 {
		n, err := m.repo.CountRequestsSince(ctx, destination, now.Add(-m.cfg.RateWindow))
		if err != nil {
			return nil, fmt.Errorf("otp: rate-limit check: %w", err)
		}
		if n >= m.cfg.RequestsPerWindow {
			m.record(ctx, userID, auditdomain.ActionSignupBlocked, destination, true)
			return nil, ErrRateLimited
		}
	}

	if err := m.repo.SupersedeActive(ctx, destination, channel); err != nil {
		return nil, fmt.Errorf("otp: supersede: %w", err)
	}

	code, err := GenerateCode(m.cfg.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("otp: generate code: %w", err)
	}

	c := &domain.Challenge{
		ID:          uuid.New().String(),
		Destination: destination,
		Channel:     channel,
		UserID:      userID,
		CodeHash:    HashCode(m.cfg.HashSecret, destination, code),
		MaxAttempts: m.cfg.MaxAttempts,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.cfg.TTL),
	}
	if err := m.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("otp: create challenge: %w", err)
	}

	m.record(ctx, userID, auditdomain.ActionOTPRequest, destination, false)
	m.metrics.ChallengeIssued(ctx, string(channel))

	if m.dev != nil {
		m.dev.Put(c.ID, code, c.ExpiresAt)
		return c, nil
	}

	if _, err := m.dispatcher.Send(ctx, destination, channel, code); err != nil {
		m.metrics.DeliveryFailure(ctx, string(channel))
		m.logger.Warn("otp delivery failed", "channel", channel, "transient", delivery.IsTransient(err), "error", err)
		return c, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return c, nil
}

// VerifyChallenge checks the submitted code against the live challenge for
// (destination, channel). Every right or wrong code against the live challenge is
// charged an attempt; a code belonging to a superseded challenge reports NotFound and
// charges nothing. At most one concurrent caller can consume the challenge.
func (m *Manager) VerifyChallenge(ctx context.Context, destination string, channel delivery.Channel, submitted string) (*VerifyResult, error) {
	if err := delivery.ValidateDestination(destination, channel); err != nil {
		return nil, err
	}
	if !validCodeFormat(submitted, m.cfg.CodeLength) {
		return nil, ErrMalformedCode
	}

	c, err := m.repo.GetActive(ctx, destination, channel)
	if err != nil {
		return nil, fmt.Errorf("otp: lookup challenge: %w", err)
	}
	if c == nil {
		m.fail(ctx, "", destination, "not_found", false)
		return nil, ErrNotFound
	}

	now := m.nowF()
	if now.After(c.ExpiresAt) {
		m.fail(ctx, c.UserID, destination, "expired", false)
		return nil, ErrExpired
	}
	if c.AttemptCount >= c.MaxAttempts {
		m.fail(ctx, c.UserID, destination, "exhausted", true)
		return nil, ErrExhausted
	}

	if !CodeEqual(m.cfg.HashSecret, destination, submitted, c.CodeHash) {
		// The code may belong to the challenge this one replaced. That is stale
		// state, not a guess, so it resolves as NotFound without spending an attempt.
		prev, err := m.repo.GetLatestSuperseded(ctx, destination, channel)
		if err != nil {
			return nil, fmt.Errorf("otp: lookup superseded challenge: %w", err)
		}
		if prev != nil && CodeEqual(m.cfg.HashSecret, destination, submitted, prev.CodeHash) {
			m.fail(ctx, prev.UserID, destination, "not_found", false)
			return nil, ErrNotFound
		}

		charged, err := m.repo.ChargeAttempt(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("otp: charge attempt: %w", err)
		}
		if charged == nil {
			// The conditional update matched nothing: a concurrent verify consumed
			// or exhausted the challenge, or a new request superseded it.
			return nil, m.resolveChargeMiss(ctx, destination, channel, now)
		}
		remaining := charged.AttemptsRemaining()
		m.fail(ctx, charged.UserID, destination, "invalid_code", remaining == 0)
		return nil, &InvalidCodeError{AttemptsRemaining: remaining}
	}

	charged, err := m.repo.ChargeAttempt(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("otp: charge attempt: %w", err)
	}
	if charged == nil {
		return nil, m.resolveChargeMiss(ctx, destination, channel, now)
	}

	ok, err := m.repo.MarkConsumed(ctx, charged.ID)
	if err != nil {
		return nil, fmt.Errorf("otp: consume challenge: %w", err)
	}
	if !ok {
		// Lost the consume race; the winner's success stands.
		m.fail(ctx, charged.UserID, destination, "not_found", false)
		return nil, ErrNotFound
	}

	m.record(ctx, charged.UserID, auditdomain.ActionOTPVerifySuccess, destination, false)
	m.metrics.VerifyOutcome(ctx, "success")
	return &VerifyResult{ChallengeID: charged.ID, UserID: charged.UserID}, nil
}

// resolveChargeMiss re-reads state to report why a conditional attempt charge found no
// live row.
func (m *Manager) resolveChargeMiss(ctx context.Context, destination string, channel delivery.Channel, now time.Time) error {
	c, err := m.repo.GetActive(ctx, destination, channel)
	if err != nil {
		return fmt.Errorf("otp: lookup after charge miss: %w", err)
	}
	if c == nil {
		m.fail(ctx, "", destination, "not_found", false)
		return ErrNotFound
	}
	switch c.State(now) {
	case domain.StateExpired:
		m.fail(ctx, c.UserID, destination, "expired", false)
		return ErrExpired
	case domain.StateExhausted:
		m.fail(ctx, c.UserID, destination, "exhausted", true)
		return ErrExhausted
	default:
		m.fail(ctx, c.UserID, destination, "not_found", false)
		return ErrNotFound
	}
}

func (m *Manager) record(ctx context.Context, actorRef string, action auditdomain.Action, destination string, blocked bool) {
	if m.recorder != nil {
		m.recorder.Record(ctx, actorRef, action, destination, blocked)
	}
}

func (m *Manager) fail(ctx context.Context, actorRef, destination, outcome string, blocked bool) {
	m.record(ctx, actorRef, auditdomain.ActionOTPVerifyFailure, destination, blocked)
	m.metrics.VerifyOutcome(ctx, outcome)
}
