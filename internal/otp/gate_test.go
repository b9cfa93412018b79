package otp

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/pkg/kv"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetDefault(logger.New(io.Discard, "error"))
}

type mockAuth struct {
	sendErr    error
	verifyErr  error
	updateErr  error
	profile    Profile
	sent       []string
	updates    []Profile
	sessionTTL time.Duration
}

func (m *mockAuth) SendOTP(_ context.Context, phone string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, phone)
	return nil
}

func (m *mockAuth) VerifyOTP(_ context.Context, phone, code string) (Session, Profile, error) {
	if m.verifyErr != nil {
		return Session{}, Profile{}, m.verifyErr
	}
	if code != "123456" {
		return Session{}, Profile{}, apperr.Unauthorized("invalid code")
	}
	ttl := m.sessionTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	p := m.profile
	p.Phone = phone
	return Session{UserID: p.ID, Phone: phone, Token: "tok", ExpiresAt: t0.Add(ttl)}, p, nil
}

func (m *mockAuth) UpdateProfile(_ context.Context, token string, p Profile) (Profile, error) {
	if m.updateErr != nil {
		return Profile{}, m.updateErr
	}
	m.updates = append(m.updates, p)
	return p, nil
}

func newTestGate(auth AuthService) (*Gate, *clock, kv.Store) {
	c := &clock{t: t0}
	store := kv.NewMemoryStore()
	limiter := NewLimiter(store, WithLimiterClock(c.now))
	return NewGate(auth, limiter, store, WithGateClock(c.now)), c, store
}

func TestGate_FirstLoginCapturesName(t *testing.T) {
	ctx := context.Background()
	auth := &mockAuth{profile: Profile{ID: "u1", Name: DefaultName}}
	g, _, store := newTestGate(auth)

	d, err := g.SendCode(ctx, "0470 12 34 56")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, d.Cooldown)
	assert.Equal(t, []string{"+32470123456"}, auth.sent)

	st := g.State()
	assert.Equal(t, StepOtpPending, st.Step)
	assert.Equal(t, "+32 470 12 34 56", st.DisplayPhone)
	assert.Equal(t, 60, st.Seconds)

	st, err = g.Verify(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, StepNameCapture, st.Step)

	p, err := g.SubmitName(ctx, "  Oksana ")
	require.NoError(t, err)
	assert.Equal(t, "Oksana", p.Name)
	assert.Equal(t, StepComplete, g.State().Step)
	require.Len(t, auth.updates, 1)

	var cached Profile
	found, err := store.Load(ctx, profileKey, &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Oksana", cached.Name)
	assert.True(t, cached.PhoneVerified)
}

func TestGate_ReturningUserCompletesDirectly(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGate(&mockAuth{profile: Profile{ID: "u1", Name: "Taras"}})

	_, err := g.SendCode(ctx, "+32470123456")
	require.NoError(t, err)
	st, err := g.Verify(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, StepComplete, st.Step)
	assert.Equal(t, "u1", g.UserID(ctx))
}

func TestGate_CachedNameSkipsNameCapture(t *testing.T) {
	ctx := context.Background()
	g, _, store := newTestGate(&mockAuth{profile: Profile{ID: "u1", Name: DefaultName}})
	require.NoError(t, store.Save(ctx, profileKey, Profile{ID: "u1", Name: "Taras"}))

	_, err := g.SendCode(ctx, "+32470123456")
	require.NoError(t, err)
	st, err := g.Verify(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, StepComplete, st.Step)
}

func TestGate_SendValidationAndConfiguration(t *testing.T) {
	ctx := context.Background()

	g, _, _ := newTestGate(&mockAuth{})
	_, err := g.SendCode(ctx, "12")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	unconfigured, _, _ := newTestGate(nil)
	assert.False(t, unconfigured.Configured())
	_, err = unconfigured.SendCode(ctx, "0470123456")
	assert.True(t, apperr.Is(err, apperr.KindNotConfigured))
}

func TestGate_FailedSendDoesNotConsumeQuota(t *testing.T) {
	ctx := context.Background()
	auth := &mockAuth{sendErr: errors.New("sms provider down")}
	g, _, store := newTestGate(auth)

	_, err := g.SendCode(ctx, "0470123456")
	require.Error(t, err)
	assert.Equal(t, apperr.KindService, apperr.KindOf(err))
	assert.Equal(t, StepPhoneEntry, g.State().Step)

	var ledger Ledger
	found, err := store.Load(ctx, ledgerKey, &ledger)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGate_ResendWaitsForCountdownAndRechecksLimit(t *testing.T) {
	ctx := context.Background()
	auth := &mockAuth{}
	g, c, _ := newTestGate(auth)

	d, err := g.SendCode(ctx, "0470123456")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, d.Cooldown)

	_, err = g.Resend(ctx)
	assert.True(t, apperr.Is(err, apperr.KindRateLimit))
	assert.Len(t, auth.sent, 1)

	c.advance(61 * time.Second)
	d, err = g.Resend(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, d.Cooldown)

	c.advance(121 * time.Second)
	d, err = g.Resend(ctx)
	require.NoError(t, err)
	assert.Equal(t, 240*time.Second, d.Cooldown)

	c.advance(241 * time.Second)
	d, err = g.Resend(ctx)
	require.Error(t, err)
	assert.True(t, d.Limited)
	assert.Equal(t, ReasonPhone, d.Reason)
	assert.Len(t, auth.sent, 3)
}

func TestGate_ChangeNumberAndWrongCode(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGate(&mockAuth{})

	_, err := g.SendCode(ctx, "0470123456")
	require.NoError(t, err)

	_, err = g.Verify(ctx, "12345")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	st, err := g.Verify(ctx, "000000")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.Equal(t, StepOtpPending, st.Step)

	g.ChangeNumber()
	assert.Equal(t, StepPhoneEntry, g.State().Step)

	_, err = g.SendCode(ctx, "0470654321")
	require.NoError(t, err)
	assert.Equal(t, "+32470654321", g.State().Phone)
}

func TestGate_NameCaptureSurvivesRemoteFailure(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGate(&mockAuth{updateErr: errors.New("503")})

	_, err := g.SendCode(ctx, "0470123456")
	require.NoError(t, err)
	_, err = g.Verify(ctx, "123456")
	require.NoError(t, err)

	_, err = g.SubmitName(ctx, "   ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	p, err := g.SubmitName(ctx, "Iryna")
	require.NoError(t, err)
	assert.Equal(t, "Iryna", p.Name)
	assert.Equal(t, StepComplete, g.State().Step)
}

func TestGate_ExpiredSessionClearsProfile(t *testing.T) {
	ctx := context.Background()
	g, c, store := newTestGate(&mockAuth{profile: Profile{ID: "u1", Name: "Taras"}, sessionTTL: time.Minute})

	_, err := g.SendCode(ctx, "0470123456")
	require.NoError(t, err)
	_, err = g.Verify(ctx, "123456")
	require.NoError(t, err)

	_, ok, err := g.Profile(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	c.advance(2 * time.Minute)
	_, ok, err = g.Session(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	var cached Profile
	found, err := store.Load(ctx, profileKey, &cached)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGate_SignOut(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGate(&mockAuth{profile: Profile{ID: "u1", Name: "Taras"}})

	_, err := g.SendCode(ctx, "0470123456")
	require.NoError(t, err)
	_, err = g.Verify(ctx, "123456")
	require.NoError(t, err)

	require.NoError(t, g.SignOut(ctx))
	assert.Equal(t, "", g.UserID(ctx))
	assert.Equal(t, StepPhoneEntry, g.State().Step)
}
