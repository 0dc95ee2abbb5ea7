package stepup

import (
	"sync"
	"time"
)

// cleanupInterval controls how often expired grants are purged on access.
const cleanupInterval = 5 * time.Minute

// Grant is one short-lived elevation bound to a session.
type Grant struct {
	Token     string
	UserID    string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// grantStore is a thread-safe in-memory store of active step-up grants.
// Grants are random server-side values, so deleting an entry invalidates the
// token immediately.
type grantStore struct {
	mu          sync.Mutex
	grants      map[string]Grant
	lastCleanup time.Time
}

func newGrantStore() *grantStore {
	return &grantStore{grants: make(map[string]Grant)}
}

func (s *grantStore) Put(grant Grant, now time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
	s.grants[grant.Token] = grant
}

func (s *grantStore) Get(token string, now time.Time) (Grant, bool) {
	if s == nil {
		return Grant{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
	grant, ok := s.grants[token]
	if !ok {
		return Grant{}, false
	}
	if !now.Before(grant.ExpiresAt) {
		delete(s.grants, token)
		return Grant{}, false
	}
	return grant, true
}

func (s *grantStore) Delete(token string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, token)
}

// DeleteSession removes every grant issued to one session.
func (s *grantStore) DeleteSession(sessionID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, grant := range s.grants {
		if grant.SessionID == sessionID {
			delete(s.grants, token)
		}
	}
}

func (s *grantStore) cleanupLocked(now time.Time) {
	if now.Sub(s.lastCleanup) < cleanupInterval {
		return
	}
	for token, grant := range s.grants {
		if !now.Before(grant.ExpiresAt) {
			delete(s.grants, token)
		}
	}
	s.lastCleanup = now
}
