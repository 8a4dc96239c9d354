package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guestlist-api/internal/domain"
	"github.com/guestlist-api/internal/infrastructure/metrics"
	"github.com/guestlist-api/internal/pkg/id"
	"github.com/guestlist-api/internal/pkg/validate"
)

const (
	transitionRetries = 5
	defaultListLimit  = 20
	maxListLimit      = 500
)

type ImportResult struct {
	Event   *domain.Event `json:"event"`
	Stats   domain.Stats  `json:"stats"`
	Changed bool          `json:"changed"`
}

type IngestReport struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Rejected  int `json:"rejected"`
}

type ReconcileResult struct {
	Before domain.Stats `json:"before"`
	After  domain.Stats `json:"after"`
	Drift  bool         `json:"drift"`
	// Consistent is false when the stored per-status counters did not add
	// up to the stored total before the recount.
	Consistent bool `json:"consistent"`
}

type ListFilter struct {
	Status domain.EventStatus
	Limit  int
}

type Service interface {
	Import(ctx context.Context, eventID string) (*ImportResult, error)
	TriggerIngestion(ctx context.Context, requestedBy string) (*domain.ScrapeRequest, error)
	Ingest(ctx context.Context, batch []domain.DiscoveredEvent) (*IngestReport, error)
	List(ctx context.Context, f ListFilter) ([]domain.Event, error)
	Get(ctx context.Context, eventID string) (*domain.Event, error)
	Stats(ctx context.Context) (domain.Stats, error)
	Reconcile(ctx context.Context) (*ReconcileResult, error)
}

// EventStore persists catalog items together with the aggregate counters.
type EventStore interface {
	Get(ctx context.Context, eventID string) (*domain.Event, error)
	// Transition writes next only if the stored item still matches prev's
	// status and content hash (or is absent when prev is nil), applying the
	// counter delta in the same atomic step. A lost race is domain.ErrConflict.
	Transition(ctx context.Context, prev, next *domain.Event) error
	List(ctx context.Context, status domain.EventStatus, limit int) ([]domain.Event, error)
	Stats(ctx context.Context) (domain.Stats, error)
	Reconcile(ctx context.Context) (before, after domain.Stats, err error)
}

// IngestionTrigger asks the external discovery process to run.
type IngestionTrigger interface {
	Trigger(ctx context.Context, req domain.ScrapeRequest) error
}

type ServiceDeps struct {
	Store    EventStore
	Trigger  IngestionTrigger
	Cooldown time.Duration
	Metrics  *metrics.Recorder
	Now      func() time.Time
}

type service struct {
	store    EventStore
	trigger  IngestionTrigger
	cooldown time.Duration
	metrics  *metrics.Recorder
	now      func() time.Time

	mu            sync.Mutex
	lastTriggered time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		store:    deps.Store,
		trigger:  deps.Trigger,
		cooldown: deps.Cooldown,
		metrics:  deps.Metrics,
		now:      now,
	}
}

// Import promotes an event to imported. Importing an already imported event
// succeeds without touching the store.
func (s *service) Import(ctx context.Context, eventID string) (*ImportResult, error) {
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < transitionRetries; i++ {
		cur, err := s.store.Get(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if cur.Status == domain.EventImported {
			stats, err := s.store.Stats(ctx)
			if err != nil {
				return nil, err
			}
			s.metrics.Import(false)
			return &ImportResult{Event: cur, Stats: stats, Changed: false}, nil
		}

		now := s.now()
		next := *cur
		next.Status = domain.EventImported
		next.ImportedAt = &now
		next.UpdatedAt = now
		err = s.store.Transition(ctx, cur, &next)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		stats, err := s.store.Stats(ctx)
		if err != nil {
			return nil, err
		}
		s.metrics.Import(true)
		slog.Info("event imported", "event_id", eventID, "from", cur.Status)
		return &ImportResult{Event: &next, Stats: stats, Changed: true}, nil
	}
	return nil, fmt.Errorf("event %s kept changing during import: %w", eventID, domain.ErrConflict)
}

// TriggerIngestion accepts at most one request per cooldown window.
func (s *service) TriggerIngestion(ctx context.Context, requestedBy string) (*domain.ScrapeRequest, error) {
	if s.trigger == nil {
		s.metrics.IngestTrigger("unavailable")
		return nil, fmt.Errorf("no ingestion topic configured: %w", domain.ErrIngestionUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastTriggered.IsZero() && now.Sub(s.lastTriggered) < s.cooldown {
		s.metrics.IngestTrigger("busy")
		return nil, fmt.Errorf("ingestion requested at %s: %w", s.lastTriggered.Format(time.RFC3339), domain.ErrBusy)
	}
	req := domain.ScrapeRequest{RequestID: id.New(), RequestedBy: requestedBy, RequestedAt: now}
	if err := s.trigger.Trigger(ctx, req); err != nil {
		s.metrics.IngestTrigger("error")
		slog.Error("ingestion trigger failed", "request_id", req.RequestID, "err", err)
		return nil, fmt.Errorf("publish scrape request: %w", domain.ErrIngestionUnavailable)
	}
	s.lastTriggered = now
	s.metrics.IngestTrigger("accepted")
	slog.Info("ingestion triggered", "request_id", req.RequestID, "requested_by", requestedBy)
	return &req, nil
}

// Ingest applies one discovery batch. Unknown events are created as new;
// known events whose content changed are refreshed and, unless imported,
// marked updated.
func (s *service) Ingest(ctx context.Context, batch []domain.DiscoveredEvent) (*IngestReport, error) {
	ctx = context.WithoutCancel(ctx)
	report := &IngestReport{}
	for _, d := range batch {
		if err := validate.Struct(d); err != nil {
			slog.Warn("discarding invalid discovered event", "event_id", d.EventID, "err", err)
			report.Rejected++
			continue
		}
		outcome, err := s.ingestOne(ctx, d)
		if err != nil {
			return report, fmt.Errorf("ingest %s: %w", d.EventID, err)
		}
		switch outcome {
		case "created":
			report.Created++
		case "updated":
			report.Updated++
		default:
			report.Unchanged++
		}
	}
	s.metrics.Ingested("created", report.Created)
	s.metrics.Ingested("updated", report.Updated)
	s.metrics.Ingested("unchanged", report.Unchanged)
	s.metrics.Ingested("rejected", report.Rejected)
	slog.Info("ingestion batch applied", "created", report.Created, "updated", report.Updated, "unchanged", report.Unchanged, "rejected", report.Rejected)
	return report, nil
}

func (s *service) ingestOne(ctx context.Context, d domain.DiscoveredEvent) (string, error) {
	hash := d.ContentHash()
	for i := 0; i < transitionRetries; i++ {
		now := s.now()
		cur, err := s.store.Get(ctx, d.EventID)
		if errors.Is(err, domain.ErrNotFound) {
			next := fromDiscovered(d, hash)
			next.Status = domain.EventNew
			next.DiscoveredAt = now
			next.UpdatedAt = now
			err = s.store.Transition(ctx, nil, &next)
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return "created", err
		}
		if err != nil {
			return "", err
		}
		if cur.ContentHash == hash {
			return "unchanged", nil
		}

		next := fromDiscovered(d, hash)
		next.DiscoveredAt = cur.DiscoveredAt
		next.ImportedAt = cur.ImportedAt
		next.UpdatedAt = now
		next.Status = domain.EventUpdated
		if cur.Status == domain.EventImported {
			next.Status = domain.EventImported
		}
		err = s.store.Transition(ctx, cur, &next)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		return "updated", err
	}
	return "", domain.ErrConflict
}

func fromDiscovered(d domain.DiscoveredEvent, hash string) domain.Event {
	return domain.Event{
		EventID:     d.EventID,
		Title:       d.Title,
		Venue:       d.Venue,
		Date:        d.Date,
		Image:       d.Image,
		SourceURL:   d.SourceURL,
		ContentHash: hash,
	}
}

func (s *service) List(ctx context.Context, f ListFilter) ([]domain.Event, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", f.Status, domain.ErrBadRequest)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.List(ctx, f.Status, limit)
}

func (s *service) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	return s.store.Get(ctx, eventID)
}

func (s *service) Stats(ctx context.Context) (domain.Stats, error) {
	return s.store.Stats(ctx)
}

// Reconcile recounts the counters from the stored items and reports whether
// they had drifted.
func (s *service) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	before, after, err := s.store.Reconcile(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	if !after.Consistent() {
		return nil, fmt.Errorf("recount produced inconsistent counters %+v", after.Events)
	}
	res := &ReconcileResult{Before: before, After: after, Drift: before != after, Consistent: before.Consistent()}
	if res.Drift {
		s.metrics.CounterDrift()
		slog.Warn("aggregate counters drifted", "before", before, "after", after, "consistent", res.Consistent)
	}
	return res, nil
}
