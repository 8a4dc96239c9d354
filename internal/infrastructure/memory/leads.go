package memory

import (
	"context"
	"fmt"

	"github.com/guestlist-api/internal/domain"
)

// LeadStore is the append-only lead ledger.
type LeadStore struct{ db *DB }

// Record redeems the verification token and appends the lead under one lock.
func (s *LeadStore) Record(_ context.Context, r domain.Redemption, l *domain.Lead) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.challenges[r.Subject]
	if !ok || !c.Redeemable(r.TokenHash, r.At) {
		return fmt.Errorf("token not redeemable: %w", domain.ErrUnverified)
	}
	c.TokenUsed = true
	c.Version++
	s.db.challenges[r.Subject] = c
	s.db.leads = append(s.db.leads, *l)
	s.db.stats = s.db.stats.Apply(domain.StatsDelta{Leads: 1})
	return nil
}

// List returns up to limit leads, newest first. limit <= 0 returns all.
func (s *LeadStore) List(_ context.Context, limit int) ([]domain.Lead, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := len(s.db.leads)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Lead, 0, n)
	for i := len(s.db.leads) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.db.leads[i])
	}
	return out, nil
}
