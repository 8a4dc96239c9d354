package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/guestlist-api/internal/application/catalog"
	"github.com/guestlist-api/internal/application/lead"
	"github.com/guestlist-api/internal/application/operator"
	"github.com/guestlist-api/internal/application/verification"
	"github.com/guestlist-api/internal/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockVerificationSvc struct{ mock.Mock }

func (m *mockVerificationSvc) Issue(ctx context.Context, subject string) error {
	return m.Called(ctx, subject).Error(0)
}

func (m *mockVerificationSvc) Resend(ctx context.Context, subject string) error {
	return m.Called(ctx, subject).Error(0)
}

func (m *mockVerificationSvc) Verify(ctx context.Context, subject, code string) (*verification.VerifyResult, error) {
	args := m.Called(ctx, subject, code)
	if res, _ := args.Get(0).(*verification.VerifyResult); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVerificationSvc) Status(ctx context.Context, subject string) (domain.ChallengeState, error) {
	args := m.Called(ctx, subject)
	return args.Get(0).(domain.ChallengeState), args.Error(1)
}

type mockLeadSvc struct{ mock.Mock }

func (m *mockLeadSvc) Submit(ctx context.Context, req lead.SubmitRequest) (*lead.SubmitResult, error) {
	args := m.Called(ctx, req)
	if res, _ := args.Get(0).(*lead.SubmitResult); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLeadSvc) List(ctx context.Context, limit int) ([]domain.Lead, error) {
	args := m.Called(ctx, limit)
	leads, _ := args.Get(0).([]domain.Lead)
	return leads, args.Error(1)
}

func (m *mockLeadSvc) Export(ctx context.Context) (*lead.ExportResult, error) {
	args := m.Called(ctx)
	if res, _ := args.Get(0).(*lead.ExportResult); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockCatalogSvc struct{ mock.Mock }

func (m *mockCatalogSvc) Import(ctx context.Context, eventID string) (*catalog.ImportResult, error) {
	args := m.Called(ctx, eventID)
	if res, _ := args.Get(0).(*catalog.ImportResult); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCatalogSvc) TriggerIngestion(ctx context.Context, requestedBy string) (*domain.ScrapeRequest, error) {
	args := m.Called(ctx, requestedBy)
	if res, _ := args.Get(0).(*domain.ScrapeRequest); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCatalogSvc) Ingest(ctx context.Context, batch []domain.DiscoveredEvent) (*catalog.IngestReport, error) {
	args := m.Called(ctx, batch)
	if res, _ := args.Get(0).(*catalog.IngestReport); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCatalogSvc) List(ctx context.Context, f catalog.ListFilter) ([]domain.Event, error) {
	args := m.Called(ctx, f)
	events, _ := args.Get(0).([]domain.Event)
	return events, args.Error(1)
}

func (m *mockCatalogSvc) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	args := m.Called(ctx, eventID)
	if res, _ := args.Get(0).(*domain.Event); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCatalogSvc) Stats(ctx context.Context) (domain.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Stats), args.Error(1)
}

func (m *mockCatalogSvc) Reconcile(ctx context.Context) (*catalog.ReconcileResult, error) {
	args := m.Called(ctx)
	if res, _ := args.Get(0).(*catalog.ReconcileResult); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockOperatorSvc struct{ mock.Mock }

func (m *mockOperatorSvc) LoginWithGoogle(ctx context.Context, idToken string) (*operator.LoginResult, error) {
	args := m.Called(ctx, idToken)
	if res, _ := args.Get(0).(*operator.LoginResult); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOperatorSvc) Current(ctx context.Context, sessionID string) (*domain.OperatorSession, error) {
	args := m.Called(ctx, sessionID)
	if res, _ := args.Get(0).(*domain.OperatorSession); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOperatorSvc) Logout(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *mockOperatorSvc) Active(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

// --- helpers ---

// withChiID injects a chi URL param "id" into the request context.
func withChiID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}
