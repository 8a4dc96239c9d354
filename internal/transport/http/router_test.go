package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/guestlist-api/internal/config"
	"github.com/guestlist-api/internal/domain"
	jwtinfra "github.com/guestlist-api/internal/infrastructure/jwt"
	"github.com/guestlist-api/internal/infrastructure/memory"
	"github.com/guestlist-api/internal/infrastructure/metrics"
	"github.com/guestlist-api/internal/pkg/otp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const ticketURL = "https://tickets.example.com/e/1"

type nopDelivery struct{}

func (nopDelivery) Send(context.Context, string, string) error { return nil }

type testServer struct {
	handler http.Handler
	db      *memory.DB
	jwt     *jwtinfra.Provider
}

func newTestServer(t *testing.T, withJWT bool) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Load()
	cfg.OTP.HashCost = bcrypt.MinCost
	cfg.OperatorEmails = []string{"ops@example.com"}

	db := memory.New()
	now := time.Now().UTC()
	require.NoError(t, db.Events().Transition(ctx, nil, &domain.Event{
		EventID: "evt-1", Title: "Jazz Night", SourceURL: ticketURL,
		Status: domain.EventImported, DiscoveredAt: now, UpdatedAt: now,
	}))

	reg := prometheus.NewRegistry()
	deps := &Deps{
		Challenges:   db.Challenges(),
		Leads:        db.Leads(),
		Events:       db.Events(),
		Sessions:     db.Sessions(),
		IssueLimiter: memory.NewWindowLimiter(cfg.OTP.IssueLimit, cfg.OTP.IssueWindow),
		Delivery:     nopDelivery{},
		Generator:    otp.Fixed("123456"),
		Metrics:      metrics.NewRecorder(reg),
		Gatherer:     reg,
	}
	srv := &testServer{db: db}
	if withJWT {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		srv.jwt = jwtinfra.NewProviderFromKeys(key, &key.PublicKey, time.Hour)
		deps.JWT = srv.jwt
	}
	srv.handler = NewRouter(ctx, cfg, deps)
	return srv
}

func (s *testServer) do(method, path, body string, prep func(*http.Request)) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	r.RemoteAddr = "203.0.113.7:5555"
	if prep != nil {
		prep(r)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, r)
	return rr
}

// operatorBearer stores an enabled session and signs a token for it.
func (s *testServer) operatorBearer(t *testing.T, sessionID string) string {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.db.Sessions().Put(context.Background(), &domain.OperatorSession{
		SessionID: sessionID, Email: "ops@example.com", Enable: true, CreatedAt: now, UpdatedAt: now,
	}))
	tok, err := s.jwt.Sign("ops@example.com", domain.RoleOperator, sessionID)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestRouter_HealthCheck(t *testing.T) {
	s := newTestServer(t, false)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health-check/ping", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/health-check/other", "", nil).Code)
}

func TestRouter_VerifyThenSubmitLead(t *testing.T) {
	s := newTestServer(t, false)

	rr := s.do(http.MethodPost, "/api/otp/send", `{"email":"Guest@Example.com"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodPost, "/api/otp/verify", `{"email":"guest@example.com","otp":"123456"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	withCookie := func(r *http.Request) { r.AddCookie(cookies[0]) }

	body := `{"email":"guest@example.com","eventId":"evt-1","eventTitle":"Jazz Night","sourceUrl":"` + ticketURL + `"}`
	rr = s.do(http.MethodPost, "/api/leads", body, withCookie)
	require.Equal(t, http.StatusCreated, rr.Code)
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			RedirectURL string `json:"redirectUrl"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, ticketURL, resp.Data.RedirectURL)

	// The token is single-use.
	rr = s.do(http.MethodPost, "/api/leads", body, withCookie)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	stats, err := s.db.Events().Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Leads.Total)
}

func TestRouter_LeadWithoutVerification(t *testing.T) {
	s := newTestServer(t, false)
	body := `{"email":"guest@example.com","eventId":"evt-1","eventTitle":"Jazz Night","sourceUrl":"` + ticketURL + `"}`
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/leads", body, nil).Code)
}

func TestRouter_PublicEvents(t *testing.T) {
	s := newTestServer(t, false)
	rr := s.do(http.MethodGet, "/api/events?status=imported", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "evt-1")
}

func TestRouter_AdminWithoutSignInConfigured(t *testing.T) {
	s := newTestServer(t, false)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/admin/stats", "", nil).Code)
}

func TestRouter_AdminRequiresActiveSession(t *testing.T) {
	s := newTestServer(t, true)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/admin/stats", "", nil).Code)

	bearer := s.operatorBearer(t, "sess-1")
	auth := func(r *http.Request) { r.Header.Set("Authorization", bearer) }

	rr := s.do(http.MethodGet, "/api/admin/stats", "", auth)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"imported":1`)

	rr = s.do(http.MethodPost, "/api/admin/events/evt-1/import", "", auth)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodPost, "/api/admin/scrape", "", auth)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "no ingestion topic configured")

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/auth/logout", "", auth).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/admin/stats", "", auth).Code)
}

func TestRouter_MetricsExposed(t *testing.T) {
	s := newTestServer(t, false)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/otp/send", `{"email":"guest@example.com"}`, nil).Code)

	rr := s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "otp_challenges_issued_total"))
}
