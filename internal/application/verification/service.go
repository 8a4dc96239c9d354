package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guestlist-api/internal/domain"
	"github.com/guestlist-api/internal/infrastructure/metrics"
	"github.com/guestlist-api/internal/pkg/id"
	"github.com/guestlist-api/internal/pkg/otp"
	"github.com/guestlist-api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// casRetries bounds how often a verify re-reads after losing a version race.
const casRetries = 5

// VerifyResult carries the single-use token minted by a successful verify.
type VerifyResult struct {
	Token     string    `json:"verificationToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service issues and verifies one-time codes. Per subject, the states are
// none -> pending -> {verified | expired | exhausted}; issuing again returns
// the subject to pending and discards the previous challenge.
type Service interface {
	Issue(ctx context.Context, subject string) error
	Resend(ctx context.Context, subject string) error
	Verify(ctx context.Context, subject, code string) (*VerifyResult, error)
	Status(ctx context.Context, subject string) (domain.ChallengeState, error)
}

// ChallengeStore holds at most one challenge record per subject.
type ChallengeStore interface {
	Get(ctx context.Context, subject string) (*domain.Challenge, error)
	// Put replaces whatever record the subject had.
	Put(ctx context.Context, c *domain.Challenge) error
	// Swap writes c only if the stored record still has c.ChallengeID and
	// expectedVersion; otherwise it returns domain.ErrConflict.
	Swap(ctx context.Context, c *domain.Challenge, expectedVersion int64) error
	// DeleteIfCurrent removes the record only while it still holds challengeID.
	DeleteIfCurrent(ctx context.Context, subject, challengeID string) error
}

// Limiter counts issuance requests per key over a sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Delivery dispatches a code to its subject.
type Delivery interface {
	Send(ctx context.Context, subject, code string) error
}

// Options tunes the challenge lifecycle.
type Options struct {
	TTL             time.Duration
	MaxAttempts     int
	PurgeGrace      time.Duration
	TokenTTL        time.Duration
	DeliveryTimeout time.Duration
	HashCost        int
	// MaxSuperseded caps how many replaced code hashes are remembered so a
	// stale code is reported as no longer active instead of as a wrong guess.
	MaxSuperseded int
}

// ServiceDeps groups the collaborators of the verification service.
type ServiceDeps struct {
	Store     ChallengeStore
	Limiter   Limiter
	Delivery  Delivery
	Generator otp.Generator
	Metrics   *metrics.Recorder
	Options   Options
	Now       func() time.Time
}

type service struct {
	store     ChallengeStore
	limiter   Limiter
	delivery  Delivery
	generator otp.Generator
	metrics   *metrics.Recorder
	opts      Options
	now       func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	opts := deps.Options
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.MaxSuperseded == 0 {
		opts.MaxSuperseded = 5
	}
	return &service{
		store:     deps.Store,
		limiter:   deps.Limiter,
		delivery:  deps.Delivery,
		generator: deps.Generator,
		metrics:   deps.Metrics,
		opts:      opts,
		now:       now,
	}
}

func (s *service) Issue(ctx context.Context, subject string) error {
	subject = domain.NormalizeSubject(subject)
	if !validate.Email(subject) {
		s.metrics.IssueRejected("invalid_subject")
		return fmt.Errorf("not a valid email address: %w", domain.ErrInvalidSubject)
	}
	allowed, err := s.limiter.Allow(ctx, "issue:"+subject)
	if err != nil {
		return fmt.Errorf("check issue limit: %w", err)
	}
	if !allowed {
		s.metrics.IssueRejected("rate_limited")
		return fmt.Errorf("too many codes requested: %w", domain.ErrRateLimited)
	}

	code, err := s.generator.Code()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.opts.HashCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	now := s.now()
	ch := &domain.Challenge{
		Subject:     subject,
		ChallengeID: id.New(),
		CodeHash:    string(hash),
		State:       domain.ChallengePending,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.opts.TTL),
		Version:     1,
		PurgeAt:     now.Add(s.opts.TTL + s.opts.PurgeGrace).Unix(),
	}
	prev, err := s.store.Get(ctx, subject)
	switch {
	case err == nil:
		ch.Version = prev.Version + 1
		ch.Superseded = s.supersede(prev)
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("load challenge: %w", err)
	}

	// The record and the dispatch commit together; a client hanging up must
	// not leave a stored challenge nobody was told about.
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Put(ctx, ch); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}

	dctx, cancel := context.WithTimeout(ctx, s.opts.DeliveryTimeout)
	defer cancel()
	started := time.Now()
	err = s.delivery.Send(dctx, subject, code)
	s.metrics.ObserveDelivery(time.Since(started), err)
	if err != nil {
		slog.Warn("code delivery failed, rolling back challenge", "subject", subject, "challenge_id", ch.ChallengeID, "err", err)
		if derr := s.store.DeleteIfCurrent(ctx, subject, ch.ChallengeID); derr != nil {
			slog.Error("failed to roll back undelivered challenge", "subject", subject, "challenge_id", ch.ChallengeID, "err", derr)
		}
		return fmt.Errorf("could not send verification code: %w", domain.ErrDeliveryFailed)
	}

	s.metrics.ChallengeIssued()
	slog.Info("verification code issued", "subject", subject, "challenge_id", ch.ChallengeID, "expires_at", ch.ExpiresAt)
	return nil
}

// Resend shares Issue's limiter bucket; resend abuse is issuance abuse.
func (s *service) Resend(ctx context.Context, subject string) error {
	return s.Issue(ctx, subject)
}

// supersede carries the replaced challenge's code hash forward whatever state
// it ended in, so an old code reads as replaced instead of as a wrong guess
// against the new one. Newest first, capped at MaxSuperseded.
func (s *service) supersede(prev *domain.Challenge) []string {
	out := make([]string, 0, len(prev.Superseded)+1)
	if prev.CodeHash != "" {
		out = append(out, prev.CodeHash)
	}
	out = append(out, prev.Superseded...)
	if len(out) > s.opts.MaxSuperseded {
		out = out[:s.opts.MaxSuperseded]
	}
	return out
}

func (s *service) Verify(ctx context.Context, subject, code string) (*VerifyResult, error) {
	subject = domain.NormalizeSubject(subject)
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < casRetries; i++ {
		res, err := s.verifyOnce(ctx, subject, code)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		s.metrics.VerifyOutcome(outcome(err))
		return res, err
	}
	s.metrics.VerifyOutcome("conflict")
	return nil, fmt.Errorf("challenge is being modified concurrently: %w", domain.ErrConflict)
}

func (s *service) verifyOnce(ctx context.Context, subject, code string) (*VerifyResult, error) {
	ch, err := s.store.Get(ctx, subject)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("no code was requested for this email: %w", domain.ErrNoActiveChallenge)
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	now := s.now()
	expected := ch.Version

	switch ch.State {
	case domain.ChallengeVerified:
		return nil, fmt.Errorf("code already used: %w", domain.ErrNoActiveChallenge)
	case domain.ChallengeExhausted:
		return nil, fmt.Errorf("request a new code: %w", domain.ErrTooManyAttempts)
	case domain.ChallengeExpired:
		return nil, fmt.Errorf("code expired: %w", domain.ErrExpired)
	}
	if !ch.Live(now) {
		ch.State = domain.ChallengeExpired
		ch.Version++
		if err := s.store.Swap(ctx, ch, expected); err != nil && !errors.Is(err, domain.ErrConflict) {
			slog.Warn("failed to mark challenge expired", "subject", subject, "err", err)
		}
		return nil, fmt.Errorf("code expired: %w", domain.ErrExpired)
	}

	if !otp.ValidCode(code) || bcrypt.CompareHashAndPassword([]byte(ch.CodeHash), []byte(code)) != nil {
		if s.matchesSuperseded(ch, code) {
			return nil, fmt.Errorf("code was replaced by a newer one: %w", domain.ErrNoActiveChallenge)
		}
		ch.Attempts++
		if ch.Attempts >= s.opts.MaxAttempts {
			ch.State = domain.ChallengeExhausted
		}
		ch.Version++
		if err := s.store.Swap(ctx, ch, expected); err != nil {
			return nil, err
		}
		if ch.State == domain.ChallengeExhausted {
			slog.Warn("challenge locked after failed attempts", "subject", subject, "attempts", ch.Attempts)
		}
		return nil, fmt.Errorf("incorrect code: %w", domain.ErrCodeMismatch)
	}

	token, err := otp.NewToken()
	if err != nil {
		return nil, err
	}
	ch.State = domain.ChallengeVerified
	ch.TokenHash = otp.HashToken(token)
	ch.TokenExpiresAt = now.Add(s.opts.TokenTTL)
	ch.TokenUsed = false
	if purge := ch.TokenExpiresAt.Add(s.opts.PurgeGrace).Unix(); purge > ch.PurgeAt {
		ch.PurgeAt = purge
	}
	ch.Version++
	if err := s.store.Swap(ctx, ch, expected); err != nil {
		return nil, err
	}
	slog.Info("subject verified", "subject", subject, "challenge_id", ch.ChallengeID)
	return &VerifyResult{Token: token, ExpiresAt: ch.TokenExpiresAt}, nil
}

func (s *service) matchesSuperseded(ch *domain.Challenge, code string) bool {
	if !otp.ValidCode(code) {
		return false
	}
	for _, h := range ch.Superseded {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(code)) == nil {
			return true
		}
	}
	return false
}

// Status reports where the subject sits in the challenge lifecycle. A subject
// without a record reports the empty state.
func (s *service) Status(ctx context.Context, subject string) (domain.ChallengeState, error) {
	ch, err := s.store.Get(ctx, domain.NormalizeSubject(subject))
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if ch.State == domain.ChallengePending && !ch.Live(s.now()) {
		return domain.ChallengeExpired, nil
	}
	return ch.State, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "verified"
	case errors.Is(err, domain.ErrNoActiveChallenge):
		return "no_active_challenge"
	case errors.Is(err, domain.ErrExpired):
		return "expired"
	case errors.Is(err, domain.ErrCodeMismatch):
		return "code_mismatch"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "too_many_attempts"
	default:
		return "error"
	}
}
