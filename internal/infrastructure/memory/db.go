// Package memory is a single-process backend for every store the services use.
// One mutex guards all tables so a lead write, its token redemption and the
// counters commit together, as do an event transition and its counters.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/guestlist-api/internal/domain"
)

// DB is the shared state behind the memory stores.
type DB struct {
	mu         sync.Mutex
	challenges map[string]domain.Challenge
	leads      []domain.Lead
	events     map[string]domain.Event
	stats      domain.Stats
	sessions   map[string]domain.OperatorSession
}

func New() *DB {
	return &DB{
		challenges: make(map[string]domain.Challenge),
		events:     make(map[string]domain.Event),
		sessions:   make(map[string]domain.OperatorSession),
	}
}

func (db *DB) Challenges() *ChallengeStore { return &ChallengeStore{db: db} }
func (db *DB) Leads() *LeadStore           { return &LeadStore{db: db} }
func (db *DB) Events() *EventStore         { return &EventStore{db: db} }
func (db *DB) Sessions() *SessionStore     { return &SessionStore{db: db} }

// Sweep drops challenges whose purge time has passed and returns how many.
func (db *DB) Sweep(now time.Time) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for subject, c := range db.challenges {
		if c.PurgeAt <= now.Unix() {
			delete(db.challenges, subject)
			n++
		}
	}
	return n
}

// RunJanitor sweeps every interval until ctx is done.
func (db *DB) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := db.Sweep(now); n > 0 {
				slog.Debug("purged expired challenges", "count", n)
			}
		}
	}
}
