// Package session keeps per-session conversation history bound to a single
// document, capped to the most recent exchanges.
package session

import (
	"context"
	"fmt"
	"time"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"

	"github.com/google/uuid"
)

const DefaultMaxPairs = 10

// Manager has no lock of its own. Every write goes through Store.Update,
// which the stores apply atomically per session.
type Manager struct {
	store    Store
	maxPairs int
	now      func() time.Time
}

func NewManager(store Store, maxPairs int) *Manager {
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}
	return &Manager{store: store, maxPairs: maxPairs, now: time.Now}
}

func (m *Manager) Create(ctx context.Context, documentID string) (*models.Session, error) {
	now := m.now().UTC()
	s := &models.Session{
		SessionID:  uuid.NewString(),
		DocumentID: documentID,
		Messages:   []models.Message{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the session, checking that it belongs to documentID. An empty
// documentID skips the check.
func (m *Manager) Get(ctx context.Context, id, documentID string) (*models.Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkDocument(s, documentID); err != nil {
		return nil, err
	}
	return s, nil
}

// Resolve creates a session when id is empty and otherwise loads it.
func (m *Manager) Resolve(ctx context.Context, id, documentID string) (*models.Session, error) {
	if id == "" {
		return m.Create(ctx, documentID)
	}
	return m.Get(ctx, id, documentID)
}

// Recent returns the last pairs exchanges in chronological order.
func (m *Manager) Recent(ctx context.Context, id, documentID string, pairs int) ([]models.Message, error) {
	s, err := m.Get(ctx, id, documentID)
	if err != nil {
		return nil, err
	}
	return tail(s.Messages, 2*pairs), nil
}

// AppendExchange records one question and its answer, evicting the oldest
// pairs beyond the cap.
func (m *Manager) AppendExchange(ctx context.Context, id, documentID, question, answer string) error {
	_, err := m.store.Update(ctx, id, func(s *models.Session) error {
		if err := checkDocument(s, documentID); err != nil {
			return err
		}
		now := m.now().UTC()
		s.Messages = append(s.Messages,
			models.Message{Role: models.RoleUser, Content: question, Timestamp: now},
			models.Message{Role: models.RoleAssistant, Content: answer, Timestamp: now},
		)
		s.Messages = tail(s.Messages, 2*m.maxPairs)
		s.UpdatedAt = now
		return nil
	})
	return err
}

func (m *Manager) Clear(ctx context.Context, id, documentID string) error {
	_, err := m.store.Update(ctx, id, func(s *models.Session) error {
		if err := checkDocument(s, documentID); err != nil {
			return err
		}
		s.Messages = []models.Message{}
		s.UpdatedAt = m.now().UTC()
		return nil
	})
	return err
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	ok, err := m.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", util.ErrSessionNotFound, id)
	}
	return nil
}

func checkDocument(s *models.Session, documentID string) error {
	if documentID != "" && s.DocumentID != documentID {
		return fmt.Errorf("%w: session %s belongs to %s, not %s",
			util.ErrSessionMismatch, s.SessionID, s.DocumentID, documentID)
	}
	return nil
}

func tail(msgs []models.Message, n int) []models.Message {
	if n <= 0 {
		return []models.Message{}
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]models.Message(nil), msgs...)
}
