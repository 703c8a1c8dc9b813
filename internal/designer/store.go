package designer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionStore keeps open designer sessions in memory and drops idle ones.
type SessionStore struct {
	deps    Deps
	idleTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates a store. A non-positive idleTTL disables expiry.
func NewSessionStore(deps Deps, idleTTL time.Duration) *SessionStore {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &SessionStore{
		deps:     deps,
		idleTTL:  idleTTL,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session for tenantID.
func (st *SessionStore) Create(tenantID string) *Session {
	s := NewSession(tenantID, st.deps)
	st.mu.Lock()
	st.sessions[s.ID()] = s
	st.mu.Unlock()
	return s
}

// Get returns the tenant's session with id.
// Sessions of other tenants are reported as not found.
func (st *SessionStore) Get(tenantID, id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok || s.TenantID() != tenantID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes a session.
func (st *SessionStore) Delete(tenantID, id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok || s.TenantID() != tenantID {
		return ErrSessionNotFound
	}
	delete(st.sessions, id)
	return nil
}

// Len returns the number of open sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were removed. Sessions with a submission in flight are kept.
func (st *SessionStore) Sweep() int {
	if st.idleTTL <= 0 {
		return 0
	}
	cutoff := st.deps.Now().Add(-st.idleTTL)

	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		snap := s.Snapshot()
		if snap.Submitting || !snap.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(st.sessions, id)
		removed++
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (st *SessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				slog.Debug("expired designer sessions", "count", n)
			}
		}
	}
}
