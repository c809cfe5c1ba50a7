package session

import "sync"

// Store defines the interface for session persistence. Implementations must
// be safe for concurrent use, and Save/Clear must be atomic: a concurrent
// Get never observes a session with only one of the two tokens.
type Store interface {
	// Save persists the full session, replacing any existing one.
	Save(s *Session) error
	// Get returns the current session, or nil, nil if there is none.
	Get() (*Session, error)
	// Clear removes all session data. Idempotent.
	Clear() error
	// Active returns true if a session with an access token is stored.
	Active() bool
	Close() error
}

// MemoryStore is an in-process Store. Sessions are copied in and out so
// callers cannot mutate the stored state.
type MemoryStore struct {
	mu   sync.RWMutex
	sess *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(s *Session) error {
	cp := *s
	m.mu.Lock()
	m.sess = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return nil, nil
	}
	cp := *m.sess
	return &cp, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	m.sess = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess.Active()
}

func (m *MemoryStore) Close() error {
	return nil
}
