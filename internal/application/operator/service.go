package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guestlist-api/internal/domain"
	"github.com/guestlist-api/internal/infrastructure/google"
	"github.com/guestlist-api/internal/pkg/id"
)

type LoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

type LoginResult struct {
	Bearer  string                  `json:"bearer"`
	Session *domain.OperatorSession `json:"session"`
}

type Service interface {
	LoginWithGoogle(ctx context.Context, idToken string) (*LoginResult, error)
	Current(ctx context.Context, sessionID string) (*domain.OperatorSession, error)
	Logout(ctx context.Context, sessionID string) error
	// Active reports whether sessionID names an enabled session. The auth
	// middleware calls it on every operator request.
	Active(ctx context.Context, sessionID string) (bool, error)
}

type SessionStore interface {
	Put(ctx context.Context, s *domain.OperatorSession) error
	Get(ctx context.Context, sessionID string) (*domain.OperatorSession, error)
	Disable(ctx context.Context, sessionID string) error
}

type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (*google.Payload, error)
}

type Signer interface {
	Sign(email, role, sessionID string) (string, error)
}

type ServiceDeps struct {
	Sessions  SessionStore
	Verifier  GoogleVerifier
	Signer    Signer
	Allowlist []string
}

type service struct {
	sessions  SessionStore
	verifier  GoogleVerifier
	signer    Signer
	allowlist map[string]struct{}
}

func NewService(deps ServiceDeps) Service {
	allow := make(map[string]struct{}, len(deps.Allowlist))
	for _, e := range deps.Allowlist {
		allow[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return &service{
		sessions:  deps.Sessions,
		verifier:  deps.Verifier,
		signer:    deps.Signer,
		allowlist: allow,
	}
}

func (s *service) LoginWithGoogle(ctx context.Context, idToken string) (*LoginResult, error) {
	if s.verifier == nil || s.signer == nil {
		return nil, fmt.Errorf("google sign-in not configured: %w", domain.ErrUnauthorized)
	}
	p, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(p.Email)
	if !p.EmailVerified || email == "" {
		return nil, fmt.Errorf("google email not verified: %w", domain.ErrUnauthorized)
	}
	if _, ok := s.allowlist[email]; !ok {
		slog.Warn("operator sign-in refused", "email", email)
		return nil, fmt.Errorf("%s is not an operator: %w", email, domain.ErrForbidden)
	}

	now := time.Now().UTC()
	sess := &domain.OperatorSession{
		SessionID: id.New(),
		Email:     email,
		Name:      strings.TrimSpace(p.FirstName + " " + p.LastName),
		Enable:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	bearer, err := s.signer.Sign(email, domain.RoleOperator, sess.SessionID)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	slog.Info("operator signed in", "email", email, "session_id", sess.SessionID)
	return &LoginResult{Bearer: bearer, Session: sess}, nil
}

func (s *service) Current(ctx context.Context, sessionID string) (*domain.OperatorSession, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Enable {
		return nil, fmt.Errorf("session ended: %w", domain.ErrUnauthorized)
	}
	return sess, nil
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Disable(ctx, sessionID)
}

func (s *service) Active(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.Enable, nil
}
