package login

import (
	"sync"
	"time"
)

// pendingLogin is what Begin remembers until the provider redirects back.
type pendingLogin struct {
	verifier  string
	returnTo  string
	expiresAt time.Time
}

// stateStore keeps pending logins keyed by the OAuth state parameter. Entries
// are single use and expire after ttl. At most limit entries are held; the one
// closest to expiry is evicted to make room.
type stateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	limit   int
	now     func() time.Time
	pending map[string]pendingLogin
}

func newStateStore(ttl time.Duration, limit int, now func() time.Time) *stateStore {
	return &stateStore{ttl: ttl, limit: limit, now: now, pending: make(map[string]pendingLogin)}
}

func (s *stateStore) put(state, verifier, returnTo string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, key)
		}
	}
	for s.limit > 0 && len(s.pending) >= s.limit {
		s.evictOldest()
	}
	s.pending[state] = pendingLogin{verifier: verifier, returnTo: returnTo, expiresAt: now.Add(s.ttl)}
}

func (s *stateStore) evictOldest() {
	var (
		oldest string
		at     time.Time
	)
	for key, p := range s.pending {
		if oldest == "" || p.expiresAt.Before(at) {
			oldest, at = key, p.expiresAt
		}
	}
	delete(s.pending, oldest)
}

// take removes and returns the entry for state.
func (s *stateStore) take(state string) (pendingLogin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[state]
	if !ok {
		return pendingLogin{}, false
	}
	delete(s.pending, state)
	if s.now().After(p.expiresAt) {
		return pendingLogin{}, false
	}
	return p, true
}

func (s *stateStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
