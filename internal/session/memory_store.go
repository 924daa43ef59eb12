package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps pending sessions in process memory. Used by tests
// and single-instance development runs.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
	}
}

func (m *MemoryStore) Create(ctx context.Context, s Session) error {
	if s.State == "" || s.UserID == "" {
		return fmt.Errorf("session: missing state or user_id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.State] = s
	return nil
}

func (m *MemoryStore) Consume(ctx context.Context, state string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[state]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.sessions, state)

	if time.Now().After(s.ExpiresAt) {
		return nil, ErrNotFound
	}

	return &s, nil
}
