package lead

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/guestlist-api/internal/domain"
	"github.com/guestlist-api/internal/infrastructure/metrics"
	"github.com/guestlist-api/internal/pkg/id"
	"github.com/guestlist-api/internal/pkg/otp"
	"github.com/guestlist-api/internal/pkg/validate"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type SubmitRequest struct {
	Token      string `json:"verificationToken"`
	Email      string `json:"email" validate:"required,email,max=254"`
	EventID    string `json:"eventId" validate:"required"`
	EventTitle string `json:"eventTitle" validate:"required,max=300"`
	SourceURL  string `json:"sourceUrl" validate:"required,url"`
}

type SubmitResult struct {
	RedirectURL string       `json:"redirectUrl"`
	Lead        *domain.Lead `json:"lead"`
}

type ExportResult struct {
	Key         string `json:"key"`
	Location    string `json:"location"`
	DownloadURL string `json:"downloadUrl"`
	Count       int    `json:"count"`
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	List(ctx context.Context, limit int) ([]domain.Lead, error)
	Export(ctx context.Context) (*ExportResult, error)
}

// Store is the lead ledger. Record must redeem the token and append the lead
// as one atomic step, failing with domain.ErrUnverified when the token is not
// redeemable.
type Store interface {
	Record(ctx context.Context, r domain.Redemption, l *domain.Lead) error
	List(ctx context.Context, limit int) ([]domain.Lead, error)
}

// EventLookup resolves the catalog event a lead is captured for.
type EventLookup interface {
	Get(ctx context.Context, eventID string) (*domain.Event, error)
}

type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type ServiceDeps struct {
	Store     Store
	Events    EventLookup
	Exports   ObjectStore
	ExportTTL time.Duration
	Metrics   *metrics.Recorder
	Now       func() time.Time
}

type service struct {
	store     Store
	events    EventLookup
	exports   ObjectStore
	exportTTL time.Duration
	metrics   *metrics.Recorder
	now       func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ttl := deps.ExportTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &service{
		store:     deps.Store,
		events:    deps.Events,
		exports:   deps.Exports,
		exportTTL: ttl,
		metrics:   deps.Metrics,
		now:       now,
	}
}

func (s *service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	req.Email = domain.NormalizeSubject(req.Email)
	if err := validate.Struct(req); err != nil {
		s.metrics.LeadRejected()
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	if req.Token == "" {
		s.metrics.LeadRejected()
		return nil, fmt.Errorf("email has not been verified: %w", domain.ErrUnverified)
	}

	// The redirect target comes from the catalog, never from the caller.
	ev, err := s.events.Get(ctx, req.EventID)
	if err != nil {
		s.metrics.LeadRejected()
		return nil, err
	}
	if ev.SourceURL != req.SourceURL {
		s.metrics.LeadRejected()
		return nil, fmt.Errorf("sourceUrl does not match event %s: %w", req.EventID, domain.ErrBadRequest)
	}

	now := s.now()
	l := &domain.Lead{
		LeadID:     id.New(),
		Email:      req.Email,
		EventID:    ev.EventID,
		EventTitle: req.EventTitle,
		SourceURL:  ev.SourceURL,
		CreatedAt:  now,
	}
	redemption := domain.Redemption{Subject: req.Email, TokenHash: otp.HashToken(req.Token), At: now}
	if err := s.store.Record(context.WithoutCancel(ctx), redemption, l); err != nil {
		if errors.Is(err, domain.ErrUnverified) {
			s.metrics.LeadRejected()
		}
		return nil, err
	}

	s.metrics.LeadCaptured()
	slog.Info("lead captured", "lead_id", l.LeadID, "event_id", l.EventID)
	return &SubmitResult{RedirectURL: l.SourceURL, Lead: l}, nil
}

func (s *service) List(ctx context.Context, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.List(ctx, limit)
}

var exportHeader = []string{"id", "email", "event_id", "event_title", "source_url", "created_at"}

// Export writes the whole ledger to object storage as CSV.
func (s *service) Export(ctx context.Context) (*ExportResult, error) {
	if s.exports == nil {
		return nil, fmt.Errorf("no bucket configured: %w", domain.ErrExportUnavailable)
	}
	leads, err := s.store.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, l := range leads {
		rec := []string{l.LeadID, l.Email, l.EventID, l.EventTitle, l.SourceURL, l.CreatedAt.UTC().Format(time.RFC3339)}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}

	key := fmt.Sprintf("exports/leads-%s.csv", id.New())
	location, err := s.exports.Upload(ctx, key, bytes.NewReader(buf.Bytes()), "text/csv")
	if err != nil {
		return nil, err
	}
	url, err := s.exports.PresignedURL(ctx, key, s.exportTTL)
	if err != nil {
		return nil, err
	}
	slog.Info("leads exported", "key", key, "count", len(leads))
	return &ExportResult{Key: key, Location: location, DownloadURL: url, Count: len(leads)}, nil
}
