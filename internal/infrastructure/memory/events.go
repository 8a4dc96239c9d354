package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/guestlist-api/internal/domain"
)

// EventStore is the catalog item store. Counters live in the same DB so each
// transition and its counter delta are applied under one lock.
type EventStore struct{ db *DB }

func (s *EventStore) Get(_ context.Context, eventID string) (*domain.Event, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
	}
	return &e, nil
}

func (s *EventStore) Transition(_ context.Context, prev, next *domain.Event) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.events[next.EventID]
	var prevStatus domain.EventStatus
	if prev == nil {
		if ok {
			return fmt.Errorf("event %s already exists: %w", next.EventID, domain.ErrConflict)
		}
	} else {
		if !ok || cur.Status != prev.Status || cur.ContentHash != prev.ContentHash {
			return fmt.Errorf("event %s changed: %w", next.EventID, domain.ErrConflict)
		}
		prevStatus = prev.Status
	}
	s.db.events[next.EventID] = *next
	s.db.stats = s.db.stats.Apply(domain.TransitionDelta(prevStatus, next.Status))
	return nil
}

// List returns events with the given status (all when empty), most recently
// discovered first.
func (s *EventStore) List(_ context.Context, status domain.EventStatus, limit int) ([]domain.Event, error) {
	s.db.mu.Lock()
	out := make([]domain.Event, 0, len(s.db.events))
	for _, e := range s.db.events {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	s.db.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].DiscoveredAt.Equal(out[j].DiscoveredAt) {
			return out[i].EventID < out[j].EventID
		}
		return out[i].DiscoveredAt.After(out[j].DiscoveredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *EventStore) Stats(_ context.Context) (domain.Stats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.stats, nil
}

// Reconcile recounts from the stored events and leads and overwrites the counters.
func (s *EventStore) Reconcile(_ context.Context) (before, after domain.Stats, err error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	before = s.db.stats
	for _, e := range s.db.events {
		after = after.Apply(domain.TransitionDelta("", e.Status))
	}
	after.Leads.Total = int64(len(s.db.leads))
	s.db.stats = after
	return before, after, nil
}
