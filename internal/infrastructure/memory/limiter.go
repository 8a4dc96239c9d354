package memory

import (
	"context"
	"sync"
	"time"
)

// WindowLimiter admits at most limit events per key within a sliding window.
type WindowLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Tests only.
func (l *WindowLimiter) WithClock(now func() time.Time) *WindowLimiter {
	l.now = now
	return l
}

func (l *WindowLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	kept := prune(l.hits[key], now.Add(-l.window))
	if len(kept) >= l.limit {
		l.hits[key] = kept
		return false, nil
	}
	l.hits[key] = append(kept, now)
	return true, nil
}

// Cleanup removes keys with no hits inside the window.
func (l *WindowLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	for k, v := range l.hits {
		if kept := prune(v, cutoff); len(kept) == 0 {
			delete(l.hits, k)
		} else {
			l.hits[k] = kept
		}
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (l *WindowLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Cleanup()
		}
	}
}
