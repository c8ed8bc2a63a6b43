package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"auth-lifecycle-engine/internal/audit/domain"
)

// MemoryRepository is an in-memory Repository for development and tests. It mirrors
// the Postgres semantics, including the blocked-only aggregate.
type MemoryRepository struct {
	mu     sync.Mutex
	events []*domain.Event
}

// NewMemoryRepository returns an empty in-memory audit repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Append(_ context.Context, e *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *MemoryRepository) ListSince(_ context.Context, since time.Time) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for _, e := range r.events {
		if e.CreatedAt.After(since) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) ListByDestination(_ context.Context, destination string, limit int) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for _, e := range r.events {
		if e.Destination == destination {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListBlockedByDestination(_ context.Context, destination string, limit int) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for _, e := range r.events {
		if e.Destination == destination && e.Blocked {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) StatsSince(_ context.Context, since time.Time) (WindowStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s WindowStats
	for _, e := range r.events {
		if e.CreatedAt.After(since) {
			s.Total++
			if e.Blocked {
				s.Blocked++
			}
		}
	}
	return s, nil
}

func (r *MemoryRepository) CountBlockedSince(_ context.Context, destination string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Destination == destination && e.Blocked && e.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) BlockedOnlyDestinations(_ context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	type agg struct {
		allBlocked bool
		latest     time.Time
	}
	byDest := make(map[string]*agg)
	for _, e := range r.events {
		if e.Destination == "" {
			continue
		}
		a, ok := byDest[e.Destination]
		if !ok {
			a = &agg{allBlocked: true}
			byDest[e.Destination] = a
		}
		if !e.Blocked {
			a.allBlocked = false
		}
		if e.CreatedAt.After(a.latest) {
			a.latest = e.CreatedAt
		}
	}
	var out []string
	for dest, a := range byDest {
		if a.allBlocked && a.latest.Before(cutoff) {
			out = append(out, dest)
		}
	}
	sort.Strings(out)
	return out, nil
}
