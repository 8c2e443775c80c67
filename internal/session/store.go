package session

import (
	"context"
	"fmt"
	"sync"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"
)

// Store persists sessions. Update applies fn atomically with respect to
// other writers of the same session.
type Store interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, s *models.Session) error
	Update(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// MemoryStore keeps sessions in process memory without expiry.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", util.ErrSessionNotFound, id)
	}
	return clone(s), nil
}

func (m *MemoryStore) Create(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.SessionID]; ok {
		return fmt.Errorf("%w: session %s already exists", util.ErrConflict, s.SessionID)
	}
	m.sessions[s.SessionID] = clone(s)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", util.ErrSessionNotFound, id)
	}
	next := clone(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	m.sessions[id] = next
	return clone(next), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok, nil
}

func clone(s *models.Session) *models.Session {
	out := *s
	out.Messages = append([]models.Message(nil), s.Messages...)
	return &out
}
