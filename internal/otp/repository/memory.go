package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"auth-lifecycle-engine/internal/delivery"
	"auth-lifecycle-engine/internal/otp/domain"
)

// ErrActiveExists mirrors the partial unique index on live challenges.
var ErrActiveExists = errors.New("challenge repository: active challenge already exists")

// MemoryRepository is an in-memory Repository for development and tests. Conditional
// updates run under one mutex so its semantics match the Postgres conditional writes.
type MemoryRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.Challenge
}

// NewMemoryRepository returns an empty in-memory challenge repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Challenge)}
}

func (r *MemoryRepository) activeLocked(destination string, channel delivery.Channel) *domain.Challenge {
	for _, c := range r.byID {
		if c.Destination == destination && c.Channel == channel && !c.Consumed && !c.Superseded {
			return c
		}
	}
	return nil
}

func (r *MemoryRepository) Create(_ context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeLocked(c.Destination, c.Channel) != nil {
		return ErrActiveExists
	}
	cp := *c
	r.byID[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetActive(_ context.Context, destination string, channel delivery.Channel) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.activeLocked(destination, channel); c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryRepository) SupersedeActive(_ context.Context, destination string, channel delivery.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.activeLocked(destination, channel); c != nil {
		c.Superseded = true
	}
	return nil
}

func (r *MemoryRepository) GetLatestSuperseded(_ context.Context, destination string, channel delivery.Channel) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Challenge
	for _, c := range r.byID {
		if c.Destination != destination || c.Channel != channel || !c.Superseded {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryRepository) ChargeAttempt(_ context.Context, id string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.Consumed || c.Superseded || c.AttemptCount >= c.MaxAttempts {
		return nil, nil
	}
	c.AttemptCount++
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) MarkConsumed(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.Consumed {
		return false, nil
	}
	c.Consumed = true
	return true, nil
}

func (r *MemoryRepository) CountRequestsSince(_ context.Context, destination string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.byID {
		if c.Destination == destination && c.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}
