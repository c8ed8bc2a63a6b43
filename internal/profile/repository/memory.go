package repository

import (
	"context"
	"sync"
	"time"

	"auth-lifecycle-engine/internal/profile/domain"
)

// MemoryRepository is an in-memory Repository for development and tests. Create is
// atomic under one mutex, so concurrent callers observe the same first-writer-wins
// behavior as the Postgres uniqueness constraint.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]*domain.Profile
}

// NewMemoryRepository returns an empty in-memory profile repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]*domain.Profile)}
}

func (r *MemoryRepository) Create(_ context.Context, p *domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[p.AccountID]; exists {
		return ErrDuplicate
	}
	cp := *p
	r.rows[p.AccountID] = &cp
	return nil
}

func (r *MemoryRepository) GetByAccountID(_ context.Context, accountID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[accountID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) Update(_ context.Context, p *domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[p.AccountID]
	if !ok {
		return nil
	}
	existing.Email = p.Email
	existing.DisplayName = p.DisplayName
	existing.AccountType = p.AccountType
	existing.Completed = p.Completed
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) SetCompleted(_ context.Context, accountID string, completed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.rows[accountID]; ok {
		p.Completed = completed
		p.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Count returns the number of stored profiles. Test helper.
func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}
