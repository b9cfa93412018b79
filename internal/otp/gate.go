package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/pkg/kv"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
)

const (
	sessionKey = "auth:session"
	profileKey = "auth:profile"
)

// DefaultName is the placeholder name new profiles start with.
const DefaultName = "Користувач"

const codeLength = 6

type Step string

const (
	StepPhoneEntry  Step = "phone_entry"
	StepOtpPending  Step = "otp_pending"
	StepNameCapture Step = "name_capture"
	StepComplete    Step = "complete"
)

type Session struct {
	UserID    string    `json:"userId"`
	Phone     string    `json:"phone"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type Profile struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	City             string `json:"city"`
	TelegramUsername string `json:"telegramUsername"`
	AvatarURL        string `json:"avatarUrl"`
	PhoneVerified    bool   `json:"phoneVerified"`
}

// HasName reports whether the profile carries a name the user chose.
func (p Profile) HasName() bool {
	name := strings.TrimSpace(p.Name)
	return name != "" && name != DefaultName
}

// AuthService dispatches and verifies codes and owns profiles.
type AuthService interface {
	SendOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, phone, code string) (Session, Profile, error)
	UpdateProfile(ctx context.Context, token string, p Profile) (Profile, error)
}

// State is a snapshot of the login attempt for the UI.
type State struct {
	Step         Step          `json:"step"`
	Phone        string        `json:"phone,omitempty"`
	DisplayPhone string        `json:"displayPhone,omitempty"`
	Countdown    time.Duration `json:"-"`
	Seconds      int           `json:"countdownSeconds"`
}

// Gate walks one device through phone login. A nil AuthService means no
// backend is configured.
type Gate struct {
	auth    AuthService
	limiter *Limiter
	store   kv.Store
	now     func() time.Time

	mu             sync.Mutex
	step           Step
	phone          string
	countdownUntil time.Time
	session        Session
}

type GateOption func(*Gate)

func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

func NewGate(auth AuthService, limiter *Limiter, store kv.Store, opts ...GateOption) *Gate {
	g := &Gate{
		auth:    auth,
		limiter: limiter,
		store:   store,
		now:     time.Now,
		step:    StepPhoneEntry,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) Configured() bool { return g.auth != nil }

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

func (g *Gate) stateLocked() State {
	st := State{Step: g.step, Phone: g.phone}
	if g.phone != "" {
		st.DisplayPhone = FormatPhone(g.phone)
	}
	if g.step == StepOtpPending {
		if left := g.countdownUntil.Sub(g.now()); left > 0 {
			st.Countdown = left
			st.Seconds = int((left + time.Second - 1) / time.Second)
		}
	}
	return st
}

// SendCode validates input, checks the rate limit and asks the auth service
// to text a code. The request is recorded only after the service accepted it.
func (g *Gate) SendCode(ctx context.Context, input string) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.step != StepPhoneEntry {
		return Decision{}, apperr.Conflict("a code was already sent; change the number to start over")
	}
	return g.sendLocked(ctx, NormalizePhone(input))
}

// Resend repeats SendCode for the pending number once the countdown is over.
func (g *Gate) Resend(ctx context.Context) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.step != StepOtpPending {
		return Decision{}, apperr.Conflict("no code is pending")
	}
	if g.now().Before(g.countdownUntil) {
		return Decision{}, apperr.RateLimited("wait for the countdown before requesting a new code", g.countdownUntil)
	}
	return g.sendLocked(ctx, g.phone)
}

func (g *Gate) sendLocked(ctx context.Context, phone string) (Decision, error) {
	if !ValidPhone(phone) {
		return Decision{}, apperr.Validation("enter a Belgian mobile number")
	}
	if g.auth == nil {
		return Decision{}, apperr.NotConfigured("backend not configured")
	}

	decision, err := g.limiter.Check(ctx, phone)
	if err != nil {
		return Decision{}, err
	}
	if decision.Limited {
		logger.InfoContext(ctx, "otp request blocked", "reason", decision.Reason, "reset_at", decision.ResetAt)
		return decision, decision.Err()
	}

	if err := g.auth.SendOTP(ctx, phone); err != nil {
		return Decision{}, asServiceErr("could not send the code", err)
	}
	if err := g.limiter.Record(ctx, phone); err != nil {
		logger.WarnContext(ctx, "failed to record otp request", "error", err)
	}

	g.step = StepOtpPending
	g.phone = phone
	g.countdownUntil = g.now().Add(decision.Cooldown)
	logger.InfoContext(ctx, "otp sent", "cooldown", decision.Cooldown.String())
	return decision, nil
}

// ChangeNumber abandons the pending code and returns to phone entry.
func (g *Gate) ChangeNumber() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.step == StepOtpPending {
		g.step = StepPhoneEntry
		g.countdownUntil = time.Time{}
	}
}

// Verify checks code with the auth service. A profile without a chosen name
// leads to name capture, otherwise login completes.
func (g *Gate) Verify(ctx context.Context, code string) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.step != StepOtpPending {
		return g.stateLocked(), apperr.Conflict("no code is pending")
	}
	code = strings.TrimSpace(code)
	if !isCode(code) {
		return g.stateLocked(), apperr.Validation("the code has %d digits", codeLength)
	}

	session, remote, err := g.auth.VerifyOTP(ctx, g.phone, code)
	if err != nil {
		return g.stateLocked(), asServiceErr("could not verify the code", err)
	}
	if session.Phone == "" {
		session.Phone = g.phone
	}

	cached, _, err := g.cachedProfile(ctx)
	if err != nil {
		logger.WarnContext(ctx, "ignoring unreadable profile cache", "error", err)
	}
	profile := remote
	if !profile.HasName() && cached.HasName() && (cached.ID == "" || cached.ID == remote.ID) {
		profile.Name = cached.Name
	}
	if profile.Phone == "" {
		profile.Phone = g.phone
	}
	profile.PhoneVerified = true

	if err := g.store.Save(ctx, sessionKey, session); err != nil {
		return g.stateLocked(), fmt.Errorf("save session: %w", err)
	}
	if err := g.store.Save(ctx, profileKey, profile); err != nil {
		logger.WarnContext(ctx, "failed to cache profile", "error", err)
	}
	g.session = session

	if profile.HasName() {
		g.step = StepComplete
	} else {
		g.step = StepNameCapture
	}
	logger.InfoContext(ctx, "phone verified", "user_id", session.UserID, "step", g.step)
	return g.stateLocked(), nil
}

// SubmitName stores the chosen name locally and then asks the auth service to
// update the profile. A failed remote update does not block completion.
func (g *Gate) SubmitName(ctx context.Context, name string) (Profile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.step != StepNameCapture {
		return Profile{}, apperr.Conflict("name capture is not active")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, apperr.Validation("name is required")
	}

	profile, _, err := g.cachedProfile(ctx)
	if err != nil {
		return Profile{}, err
	}
	profile.Name = name
	if profile.Phone == "" {
		profile.Phone = g.phone
	}
	if err := g.store.Save(ctx, profileKey, profile); err != nil {
		return Profile{}, fmt.Errorf("save profile: %w", err)
	}

	if updated, err := g.auth.UpdateProfile(ctx, g.session.Token, profile); err != nil {
		logger.WarnContext(ctx, "remote profile update failed", "user_id", g.session.UserID, "error", err)
	} else {
		profile = updated
		if !profile.HasName() {
			profile.Name = name
		}
		if err := g.store.Save(ctx, profileKey, profile); err != nil {
			logger.WarnContext(ctx, "failed to cache profile", "error", err)
		}
	}

	g.step = StepComplete
	return profile, nil
}

// Session returns the stored session. An expired session is cleared along
// with the cached profile.
func (g *Gate) Session(ctx context.Context) (Session, bool, error) {
	var s Session
	found, err := g.store.Load(ctx, sessionKey, &s)
	if err != nil {
		return Session{}, false, err
	}
	if !found || s.Token == "" {
		return Session{}, false, nil
	}
	if s.Expired(g.now()) {
		logger.InfoContext(ctx, "session expired", "user_id", s.UserID)
		if err := g.SignOut(ctx); err != nil {
			return Session{}, false, err
		}
		return Session{}, false, nil
	}
	return s, true, nil
}

// Profile returns the cached profile of a live session.
func (g *Gate) Profile(ctx context.Context) (Profile, bool, error) {
	if _, ok, err := g.Session(ctx); err != nil || !ok {
		return Profile{}, false, err
	}
	return g.cachedProfile(ctx)
}

// UpdateProfile saves changes locally and pushes them to the auth service.
func (g *Gate) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	s, ok, err := g.Session(ctx)
	if err != nil {
		return Profile{}, err
	}
	if !ok {
		return Profile{}, apperr.Unauthorized("sign in first")
	}
	if g.auth == nil {
		return Profile{}, apperr.NotConfigured("backend not configured")
	}

	current, _, err := g.cachedProfile(ctx)
	if err != nil {
		return Profile{}, err
	}
	p.ID = current.ID
	p.Phone = current.Phone
	p.PhoneVerified = current.PhoneVerified
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = current.Name
	}

	updated, err := g.auth.UpdateProfile(ctx, s.Token, p)
	if err != nil {
		return Profile{}, asServiceErr("could not update the profile", err)
	}
	if err := g.store.Save(ctx, profileKey, updated); err != nil {
		logger.WarnContext(ctx, "failed to cache profile", "error", err)
	}
	return updated, nil
}

// SignOut forgets the session and the cached profile.
func (g *Gate) SignOut(ctx context.Context) error {
	g.mu.Lock()
	g.step = StepPhoneEntry
	g.phone = ""
	g.countdownUntil = time.Time{}
	g.session = Session{}
	g.mu.Unlock()

	return errors.Join(
		g.store.Delete(ctx, sessionKey),
		g.store.Delete(ctx, profileKey),
	)
}

// UserID is the signed-in user, or "" without a live session.
func (g *Gate) UserID(ctx context.Context) string {
	s, ok, err := g.Session(ctx)
	if err != nil || !ok {
		return ""
	}
	return s.UserID
}

func (g *Gate) cachedProfile(ctx context.Context) (Profile, bool, error) {
	var p Profile
	found, err := g.store.Load(ctx, profileKey, &p)
	if err != nil {
		return Profile{}, false, fmt.Errorf("load profile: %w", err)
	}
	return p, found, nil
}

func isCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func asServiceErr(msg string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Service(msg, err)
}
