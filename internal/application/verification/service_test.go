package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/guestlist-api/internal/domain"
	"github.com/guestlist-api/internal/infrastructure/memory"
	"github.com/guestlist-api/internal/pkg/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockDelivery struct{ mock.Mock }

func (m *mockDelivery) Send(ctx context.Context, subject, code string) error {
	return m.Called(ctx, subject, code).Error(0)
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string) (bool, error) { return true, nil }

// sequence yields the given codes in order, then repeats the last one.
type sequence struct {
	mu    sync.Mutex
	codes []string
}

func (s *sequence) Code() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.codes[0]
	if len(s.codes) > 1 {
		s.codes = s.codes[1:]
	}
	return c, nil
}

// --- builder ---

type fixture struct {
	svc      Service
	store    *memory.ChallengeStore
	delivery *mockDelivery
	now      time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T, gen otp.Generator, limiter Limiter) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New().Challenges(),
		delivery: &mockDelivery{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.delivery.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	if limiter == nil {
		limiter = allowAll{}
	}
	f.svc = NewService(ServiceDeps{
		Store:     f.store,
		Limiter:   limiter,
		Delivery:  f.delivery,
		Generator: gen,
		Options: Options{
			TTL:             10 * time.Minute,
			MaxAttempts:     5,
			PurgeGrace:      time.Hour,
			TokenTTL:        10 * time.Minute,
			DeliveryTimeout: time.Second,
			HashCost:        bcrypt.MinCost,
		},
		Now: func() time.Time { return f.now },
	})
	return f
}

var ctx = context.Background()

// --- Issue ---

func TestIssue_InvalidSubject(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	for _, s := range []string{"", "not-an-email", "a@", "@b.com"} {
		err := f.svc.Issue(ctx, s)
		assert.ErrorIs(t, err, domain.ErrInvalidSubject, s)
	}
	f.delivery.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssue_NormalizesSubjectAndDelivers(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	require.NoError(t, f.svc.Issue(ctx, "  A@B.com "))

	f.delivery.AssertCalled(t, "Send", mock.Anything, "a@b.com", "123456")
	ch, err := f.store.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengePending, ch.State)
	assert.Equal(t, 0, ch.Attempts)
	assert.Equal(t, f.now.Add(10*time.Minute), ch.ExpiresAt)
	assert.NotEqual(t, "123456", ch.CodeHash, "code is stored hashed")
}

func TestIssue_RateLimitedSharesBucketWithResend(t *testing.T) {
	limiter := memory.NewWindowLimiter(2, time.Hour)
	f := newFixture(t, otp.Fixed("123456"), limiter)

	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))
	require.NoError(t, f.svc.Resend(ctx, "a@b.com"))
	assert.ErrorIs(t, f.svc.Resend(ctx, "a@b.com"), domain.ErrRateLimited)
	assert.ErrorIs(t, f.svc.Issue(ctx, "A@b.com"), domain.ErrRateLimited)
	assert.NoError(t, f.svc.Issue(ctx, "c@d.com"))
}

func TestIssue_DeliveryFailureRollsBack(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	f.delivery = &mockDelivery{}
	f.delivery.On("Send", mock.Anything, "a@b.com", "123456").Return(errors.New("smtp down"))
	f.svc.(*service).delivery = f.delivery

	err := f.svc.Issue(ctx, "a@b.com")
	require.ErrorIs(t, err, domain.ErrDeliveryFailed)

	_, err = f.store.Get(ctx, "a@b.com")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no orphaned challenge after failed dispatch")
	_, err = f.svc.Verify(ctx, "a@b.com", "123456")
	assert.ErrorIs(t, err, domain.ErrNoActiveChallenge)
}

func TestIssue_DeliveryIsTimeBounded(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	f.delivery = &mockDelivery{}
	f.delivery.On("Send", mock.Anything, "a@b.com", "123456").Return(nil).Run(func(args mock.Arguments) {
		dctx := args.Get(0).(context.Context)
		_, ok := dctx.Deadline()
		assert.True(t, ok, "dispatch runs under a deadline")
	})
	f.svc.(*service).delivery = f.delivery
	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))
}

// --- Verify ---

func TestVerify_NoChallenge(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	_, err := f.svc.Verify(ctx, "a@b.com", "123456")
	assert.ErrorIs(t, err, domain.ErrNoActiveChallenge)
}

func TestVerify_Scenario_MismatchThenSuccessThenReplay(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))

	_, err := f.svc.Verify(ctx, "a@b.com", "654321")
	assert.ErrorIs(t, err, domain.ErrCodeMismatch)

	res, err := f.svc.Verify(ctx, "a@b.com", "123456")
	require.NoError(t, err)
	assert.Len(t, res.Token, 64)
	assert.Equal(t, f.now.Add(10*time.Minute), res.ExpiresAt)

	_, err = f.svc.Verify(ctx, "a@b.com", "123456")
	assert.ErrorIs(t, err, domain.ErrNoActiveChallenge)

	state, err := f.svc.Status(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeVerified, state)
}

func TestVerify_ReissueInvalidatesPreviousCode(t *testing.T) {
	f := newFixture(t, &sequence{codes: []string{"111111", "222222"}}, nil)
	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))
	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))

	_, err := f.svc.Verify(ctx, "a@b.com", "111111")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoActiveChallenge) || errors.Is(err, domain.ErrExpired), err.Error())

	ch, _ := f.store.Get(ctx, "a@b.com")
	assert.Equal(t, 0, ch.Attempts, "a superseded code is not counted as a guess")

	_, err = f.svc.Verify(ctx, "a@b.com", "222222")
	assert.NoError(t, err)
}

func TestVerify_ReissueAfterExpiredOrExhaustedPrevious(t *testing.T) {
	cases := map[string]func(f *fixture){
		"expired": func(f *fixture) {
			f.advance(11 * time.Minute)
		},
		"exhausted": func(f *fixture) {
			for i := 0; i < 5; i++ {
				_, _ = f.svc.Verify(ctx, "a@b.com", "999999")
			}
		},
		"verified": func(f *fixture) {
			_, err := f.svc.Verify(ctx, "a@b.com", "111111")
			require.NoError(t, err)
		},
	}
	for name, before := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, &sequence{codes: []string{"111111", "222222"}}, nil)
			require.NoError(t, f.svc.Issue(ctx, "a@b.com"))
			before(f)
			require.NoError(t, f.svc.Issue(ctx, "a@b.com"))

			_, err := f.svc.Verify(ctx, "a@b.com", "111111")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrNoActiveChallenge) || errors.Is(err, domain.ErrExpired), err.Error())
			assert.NotErrorIs(t, err, domain.ErrCodeMismatch)

			ch, _ := f.store.Get(ctx, "a@b.com")
			assert.Equal(t, 0, ch.Attempts, "the old code does not burn a guess on the new challenge")

			_, err = f.svc.Verify(ctx, "a@b.com", "222222")
			assert.NoError(t, err)
		})
	}
}

func TestVerify_SupersededHistoryIsCapped(t *testing.T) {
	codes := []string{"100000", "200000", "300000", "400000", "500000", "600000", "700000", "800000"}
	f := newFixture(t, &sequence{codes: codes}, nil)
	for range codes {
		require.NoError(t, f.svc.Issue(ctx, "a@b.com"))
	}
	ch, err := f.store.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Len(t, ch.Superseded, 5)

	_, err = f.svc.Verify(ctx, "a@b.com", "300000")
	assert.ErrorIs(t, err, domain.ErrNoActiveChallenge, "within the remembered history")
	_, err = f.svc.Verify(ctx, "a@b.com", "100000")
	assert.ErrorIs(t, err, domain.ErrCodeMismatch, "older than the remembered history")
}

func TestVerify_ExpiredEvenWithCorrectCode(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))
	f.advance(10*time.Minute + time.Second)

	_, err := f.svc.Verify(ctx, "a@b.com", "123456")
	assert.ErrorIs(t, err, domain.ErrExpired)
	_, err = f.svc.Verify(ctx, "a@b.com", "123456")
	assert.ErrorIs(t, err, domain.ErrExpired)

	state, _ := f.svc.Status(ctx, "a@b.com")
	assert.Equal(t, domain.ChallengeExpired, state)
}

func TestVerify_ExactlyAtExpiryStillValid(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))
	f.advance(10 * time.Minute)
	_, err := f.svc.Verify(ctx, "a@b.com", "123456")
	assert.NoError(t, err)
}

func TestVerify_LocksAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))

	for i := 0; i < 5; i++ {
		_, err := f.svc.Verify(ctx, "a@b.com", "000000")
		assert.ErrorIs(t, err, domain.ErrCodeMismatch, "attempt %d", i+1)
	}
	_, err := f.svc.Verify(ctx, "a@b.com", "000000")
	assert.ErrorIs(t, err, domain.ErrTooManyAttempts)
	_, err = f.svc.Verify(ctx, "a@b.com", "123456")
	assert.ErrorIs(t, err, domain.ErrTooManyAttempts, "correct code after lockout still fails")

	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))
	_, err = f.svc.Verify(ctx, "a@b.com", "123456")
	assert.NoError(t, err, "a fresh challenge clears the lock")
}

func TestVerify_MalformedCodeCountsAsMismatch(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))
	_, err := f.svc.Verify(ctx, "a@b.com", "12ab")
	assert.ErrorIs(t, err, domain.ErrCodeMismatch)
	ch, _ := f.store.Get(ctx, "a@b.com")
	assert.Equal(t, 1, ch.Attempts)
}

func TestVerify_ConcurrentCorrectCodesSucceedOnce(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	require.NoError(t, f.svc.Issue(ctx, "a@b.com"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Verify(ctx, "a@b.com", "123456"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestIssue_ConcurrentIssuesLeaveOneLiveChallenge(t *testing.T) {
	f := newFixture(t, &sequence{codes: []string{"111111", "222222", "333333", "444444"}}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.Issue(ctx, "a@b.com"))
		}()
	}
	wg.Wait()

	successes := 0
	for _, code := range []string{"111111", "222222", "333333", "444444"} {
		if _, err := f.svc.Verify(ctx, "a@b.com", code); err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "only the last stored code is live")
}

func TestStatus_Unknown(t *testing.T) {
	f := newFixture(t, otp.Fixed("123456"), nil)
	state, err := f.svc.Status(ctx, "nobody@b.com")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeState(""), state)
}
