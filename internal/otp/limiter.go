package otp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/pkg/kv"
	"github.com/dustin/go-humanize"
)

const ledgerKey = "auth:otp_ledger"

const (
	dayWindow  = 24 * time.Hour
	hourWindow = time.Hour
)

// Ledger is the device log of confirmed OTP sends.
type Ledger struct {
	Requests      []time.Time            `json:"requests"`
	PhoneRequests map[string][]time.Time `json:"phoneRequests"`
}

// prune returns a copy of l with global entries inside the last 24h and phone
// entries inside the last hour. Timestamps ahead of now, left by a clock that
// was moved back, count as now.
func (l Ledger) prune(now time.Time) Ledger {
	out := Ledger{
		Requests:      within(l.Requests, now, dayWindow),
		PhoneRequests: make(map[string][]time.Time, len(l.PhoneRequests)),
	}
	for phone, ts := range l.PhoneRequests {
		if kept := within(ts, now, hourWindow); len(kept) > 0 {
			out.PhoneRequests[phone] = kept
		}
	}
	return out
}

func within(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	out := make([]time.Time, 0, len(ts))
	for _, t := range ts {
		if t.After(now) {
			t = now
		}
		if now.Sub(t) < window {
			out = append(out, t)
		}
	}
	return out
}

type Limits struct {
	DailyMax       int
	PerPhoneHourly int
	BaseCooldown   time.Duration
	MaxBackoff     int
}

var DefaultLimits = Limits{
	DailyMax:       10,
	PerPhoneHourly: 3,
	BaseCooldown:   60 * time.Second,
	MaxBackoff:     8,
}

type Reason string

const (
	ReasonDaily Reason = "daily"
	ReasonPhone Reason = "phone"
)

type Decision struct {
	Limited bool
	Reason  Reason
	// ResetAt is when the limiting entry leaves its window.
	ResetAt time.Time
	Message string

	Cooldown       time.Duration
	PhoneRemaining int
	DailyRemaining int
}

// Err is the rate-limit error for a limited decision, nil otherwise.
func (d Decision) Err() error {
	if !d.Limited {
		return nil
	}
	return apperr.RateLimited(d.Message, d.ResetAt)
}

// Evaluate decides whether phone may request a code at now. It does not
// modify ledger.
func Evaluate(ledger Ledger, phone string, now time.Time, limits Limits) Decision {
	pruned := ledger.prune(now)
	phoneLog := pruned.PhoneRequests[phone]

	if len(pruned.Requests) >= limits.DailyMax {
		resetAt := oldest(pruned.Requests).Add(dayWindow)
		return Decision{
			Limited: true,
			Reason:  ReasonDaily,
			ResetAt: resetAt,
			Message: fmt.Sprintf("Daily SMS limit reached. Try again %s (at %s).", relative(resetAt, now), resetAt.Format("15:04")),
		}
	}
	if len(phoneLog) >= limits.PerPhoneHourly {
		resetAt := oldest(phoneLog).Add(hourWindow)
		return Decision{
			Limited: true,
			Reason:  ReasonPhone,
			ResetAt: resetAt,
			Message: fmt.Sprintf("Too many codes for this number. Try again %s (at %s).", relative(resetAt, now), resetAt.Format("15:04")),
		}
	}

	recent := 0
	for _, t := range pruned.Requests {
		if now.Sub(t) < hourWindow {
			recent++
		}
	}
	return Decision{
		Cooldown:       limits.BaseCooldown * time.Duration(backoff(recent, limits.MaxBackoff)),
		PhoneRemaining: limits.PerPhoneHourly - len(phoneLog),
		DailyRemaining: limits.DailyMax - len(pruned.Requests),
	}
}

// backoff is min(2^n, ceiling).
func backoff(n, ceiling int) int {
	m := 1
	for i := 0; i < n && m < ceiling; i++ {
		m *= 2
	}
	if m > ceiling {
		return ceiling
	}
	return m
}

func oldest(ts []time.Time) time.Time {
	first := ts[0]
	for _, t := range ts[1:] {
		if t.Before(first) {
			first = t
		}
	}
	return first
}

func relative(resetAt, now time.Time) string {
	return humanize.RelTime(resetAt, now, "ago", "from now")
}

// Limiter keeps the ledger in the key-value store. Check never writes;
// Record is called only after the auth service accepted a send.
type Limiter struct {
	store  kv.Store
	limits Limits
	now    func() time.Time

	mu sync.Mutex
}

type LimiterOption func(*Limiter)

func WithLimits(limits Limits) LimiterOption {
	return func(l *Limiter) { l.limits = limits }
}

func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(store kv.Store, opts ...LimiterOption) *Limiter {
	l := &Limiter{store: store, limits: DefaultLimits, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Check(ctx context.Context, phone string) (Decision, error) {
	ledger, err := l.load(ctx)
	if err != nil {
		return Decision{}, err
	}
	return Evaluate(ledger, phone, l.now(), l.limits), nil
}

// Record appends a confirmed send for phone and persists the pruned ledger.
func (l *Limiter) Record(ctx context.Context, phone string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ledger, err := l.load(ctx)
	if err != nil {
		return err
	}
	now := l.now()
	ledger = ledger.prune(now)
	ledger.Requests = append(ledger.Requests, now)
	ledger.PhoneRequests[phone] = append(ledger.PhoneRequests[phone], now)

	if err := l.store.Save(ctx, ledgerKey, ledger); err != nil {
		return fmt.Errorf("save otp ledger: %w", err)
	}
	return nil
}

func (l *Limiter) load(ctx context.Context) (Ledger, error) {
	ledger := Ledger{PhoneRequests: map[string][]time.Time{}}
	if _, err := l.store.Load(ctx, ledgerKey, &ledger); err != nil {
		return Ledger{}, fmt.Errorf("load otp ledger: %w", err)
	}
	return ledger, nil
}
