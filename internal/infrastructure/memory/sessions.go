package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/guestlist-api/internal/domain"
)

// SessionStore keeps operator sessions.
type SessionStore struct{ db *DB }

func (s *SessionStore) Put(_ context.Context, sess *domain.OperatorSession) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.sessions[sess.SessionID] = *sess
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.OperatorSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sess, ok := s.db.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return &sess, nil
}

func (s *SessionStore) Disable(_ context.Context, sessionID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sess, ok := s.db.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	sess.Enable = false
	sess.UpdatedAt = time.Now().UTC()
	s.db.sessions[sessionID] = sess
	return nil
}
