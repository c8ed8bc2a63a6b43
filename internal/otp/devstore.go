package otp

import (
	"sync"
	"time"
)

// DevStore holds plain codes by challenge ID for dev-only retrieval, used when dev OTP
// mode is enabled instead of a real delivery channel. Not used in production; config
// refuses to enable it there.
type DevStore struct {
	mu   sync.RWMutex
	m    map[string]devEntry
	nowF func() time.Time
}

type devEntry struct {
	code      string
	expiresAt time.Time
}

// NewDevStore returns a new in-memory dev code store.
func NewDevStore() *DevStore {
	return &DevStore{
		m:    make(map[string]devEntry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores code for challengeID until expiresAt.
func (s *DevStore) Put(challengeID, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[challengeID] = devEntry{code: code, expiresAt: expiresAt}
}

// Get returns the code for challengeID if present and not expired.
func (s *DevStore) Get(challengeID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[challengeID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if s.nowF().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.m, challengeID)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}
