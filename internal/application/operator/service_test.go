package operator

import (
	"context"
	"testing"

	"github.com/guestlist-api/internal/domain"
	"github.com/guestlist-api/internal/infrastructure/google"
	"github.com/guestlist-api/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(ctx context.Context, token string) (*google.Payload, error) {
	args := m.Called(ctx, token)
	if p, _ := args.Get(0).(*google.Payload); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(email, role, sessionID string) (string, error) {
	args := m.Called(email, role, sessionID)
	return args.String(0), args.Error(1)
}

func newTestService(v *mockVerifier, sg *mockSigner) (Service, *memory.SessionStore) {
	store := memory.New().Sessions()
	return NewService(ServiceDeps{
		Sessions:  store,
		Verifier:  v,
		Signer:    sg,
		Allowlist: []string{" Ops@Example.com "},
	}), store
}

var ctx = context.Background()

func TestLoginWithGoogle_Operator(t *testing.T) {
	v, sg := &mockVerifier{}, &mockSigner{}
	v.On("Verify", mock.Anything, "tok").Return(&google.Payload{Email: "OPS@example.com", EmailVerified: true, FirstName: "Ada", LastName: "L"}, nil)
	sg.On("Sign", "ops@example.com", domain.RoleOperator, mock.AnythingOfType("string")).Return("bearer", nil)
	svc, _ := newTestService(v, sg)

	res, err := svc.LoginWithGoogle(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.Bearer)
	assert.Equal(t, "Ada L", res.Session.Name)

	active, err := svc.Active(ctx, res.Session.SessionID)
	require.NoError(t, err)
	assert.True(t, active)

	cur, err := svc.Current(ctx, res.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", cur.Email)
}

func TestLoginWithGoogle_Rejections(t *testing.T) {
	v, sg := &mockVerifier{}, &mockSigner{}
	v.On("Verify", mock.Anything, "stranger").Return(&google.Payload{Email: "x@example.com", EmailVerified: true}, nil)
	v.On("Verify", mock.Anything, "unverified").Return(&google.Payload{Email: "ops@example.com"}, nil)
	v.On("Verify", mock.Anything, "bad").Return(nil, domain.ErrUnauthorized)
	svc, _ := newTestService(v, sg)

	_, err := svc.LoginWithGoogle(ctx, "stranger")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.LoginWithGoogle(ctx, "unverified")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.LoginWithGoogle(ctx, "bad")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	sg.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogout_DisablesSession(t *testing.T) {
	svc, store := newTestService(&mockVerifier{}, &mockSigner{})
	require.NoError(t, store.Put(ctx, &domain.OperatorSession{SessionID: "s1", Email: "ops@example.com", Enable: true}))

	require.NoError(t, svc.Logout(ctx, "s1"))
	active, err := svc.Active(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, active)
	_, err = svc.Current(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	active, err = svc.Active(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestLoginWithGoogle_NotConfigured(t *testing.T) {
	svc := NewService(ServiceDeps{Sessions: memory.New().Sessions(), Verifier: &mockVerifier{}})
	_, err := svc.LoginWithGoogle(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
