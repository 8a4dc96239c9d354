package memory

import (
	"context"
	"fmt"

	"github.com/guestlist-api/internal/domain"
)

// ChallengeStore keeps one challenge per subject.
type ChallengeStore struct{ db *DB }

func (s *ChallengeStore) Get(_ context.Context, subject string) (*domain.Challenge, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.challenges[subject]
	if !ok {
		return nil, fmt.Errorf("challenge not found: %w", domain.ErrNotFound)
	}
	return cloneChallenge(c), nil
}

func (s *ChallengeStore) Put(_ context.Context, c *domain.Challenge) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.challenges[c.Subject] = *cloneChallenge(*c)
	return nil
}

func (s *ChallengeStore) Swap(_ context.Context, c *domain.Challenge, expectedVersion int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.challenges[c.Subject]
	if !ok || cur.ChallengeID != c.ChallengeID || cur.Version != expectedVersion {
		return fmt.Errorf("challenge changed: %w", domain.ErrConflict)
	}
	s.db.challenges[c.Subject] = *cloneChallenge(*c)
	return nil
}

func (s *ChallengeStore) DeleteIfCurrent(_ context.Context, subject, challengeID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if cur, ok := s.db.challenges[subject]; ok && cur.ChallengeID == challengeID {
		delete(s.db.challenges, subject)
	}
	return nil
}

func cloneChallenge(c domain.Challenge) *domain.Challenge {
	if c.Superseded != nil {
		c.Superseded = append([]string(nil), c.Superseded...)
	}
	return &c
}
