// pkg/store/memory.go
package store

import (
	"sync"

	"go.uber.org/zap"
)

// MemoryStore implements CallStore with a mutex-guarded map. State is
// memory-only and lost on restart; entries are never evicted, they persist
// until the process exits or the call fails.
type MemoryStore struct {
	mu    sync.RWMutex
	calls map[string]*CallSession
	stats Stats

	logger *zap.Logger
}

// NewMemoryStore creates an empty call session store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		calls:  make(map[string]*CallSession),
		logger: logger,
	}
}

// Insert adds a new session. The ID must be unique for the process lifetime.
func (m *MemoryStore) Insert(session *CallSession) error {
	if session == nil || session.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.calls[session.ID]; exists {
		return ErrAlreadyExists
	}
	clone := *session
	m.calls[session.ID] = &clone
	m.stats.Inserted++
	m.stats.Active = len(m.calls)

	m.logger.Debug("Call session inserted",
		zap.String("call_id", session.ID),
		zap.String("status", session.Status))
	return nil
}

// UpdateStatus transitions a session's lifecycle status.
func (m *MemoryStore) UpdateStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.calls[id]
	if !exists {
		return ErrNotFound
	}
	session.Status = status
	return nil
}

// Get returns a copy of the session, or ErrNotFound.
func (m *MemoryStore) Get(id string) (*CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.calls[id]
	if !exists {
		return nil, ErrNotFound
	}
	clone := *session
	return &clone, nil
}

// Delete removes a session. Removing a missing session is not an error.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.calls[id]; exists {
		delete(m.calls, id)
		m.stats.Removed++
		m.stats.Active = len(m.calls)
	}
	return nil
}

// All returns copies of every tracked session.
func (m *MemoryStore) All() []*CallSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*CallSession, 0, len(m.calls))
	for _, session := range m.calls {
		clone := *session
		sessions = append(sessions, &clone)
	}
	return sessions
}

// Stats returns store activity counters.
func (m *MemoryStore) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
