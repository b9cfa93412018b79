package service

import (
	"context"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/ukrbe-market/internal/listing"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/domain"
	"github.com/google/uuid"
)

type mockProfileRepo struct {
	byPhone map[string]*domain.Profile
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{byPhone: map[string]*domain.Profile{}}
}

func (m *mockProfileRepo) UpsertVerified(_ context.Context, phone string) (*domain.Profile, error) {
	if p, ok := m.byPhone[phone]; ok {
		p.PhoneVerified = true
		return p, nil
	}
	p := &domain.Profile{ID: uuid.NewString(), Phone: phone, Name: domain.DefaultName, PhoneVerified: true}
	m.byPhone[phone] = p
	return p, nil
}

func (m *mockProfileRepo) FindByID(_ context.Context, id string) (*domain.Profile, error) {
	for _, p := range m.byPhone {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockProfileRepo) Update(ctx context.Context, id string, req *domain.UpdateProfileRequest) (*domain.Profile, error) {
	p, _ := m.FindByID(ctx, id)
	if p == nil {
		return nil, nil
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.City != nil {
		p.City = *req.City
	}
	if req.TelegramUsername != nil {
		p.TelegramUsername = *req.TelegramUsername
	}
	return p, nil
}

type storedCode struct {
	hash     string
	attempts int
	used     bool
}

type mockCodeRepo struct {
	codes map[string]*storedCode
}

func (m *mockCodeRepo) Create(_ context.Context, phone, codeHash string, _ time.Time) error {
	m.codes[phone] = &storedCode{hash: codeHash}
	return nil
}

func (m *mockCodeRepo) Check(_ context.Context, phone, code string, maxAttempts int) (bool, error) {
	c, ok := m.codes[phone]
	if !ok || c.used || c.attempts >= maxAttempts {
		return false, nil
	}
	match, err := argon2id.ComparePasswordAndHash(code, c.hash)
	if err != nil {
		return false, err
	}
	if !match {
		c.attempts++
		return false, nil
	}
	c.used = true
	return true, nil
}

func (m *mockCodeRepo) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type mockQuota struct {
	allow bool
	used  int
}

func (m *mockQuota) Allow(context.Context, string, int, time.Duration) (bool, error) {
	if m.allow {
		m.used++
	}
	return m.allow, nil
}

func (m *mockQuota) Release(context.Context, string) error {
	m.used--
	return nil
}

type mockSender struct {
	err  error
	sent map[string]string
}

func (m *mockSender) SendCode(_ context.Context, phone, code string) error {
	if m.err != nil {
		return m.err
	}
	m.sent[phone] = code
	return nil
}

type mockListingRepo struct {
	rows map[string]listing.Row
}

func newMockListingRepo() *mockListingRepo {
	return &mockListingRepo{rows: map[string]listing.Row{}}
}

func (m *mockListingRepo) List(_ context.Context, _ listing.Domain, f listing.Filter) ([]listing.Row, error) {
	out := []listing.Row{}
	for _, r := range m.rows {
		if s := f.EffectiveStatus(); s != "" && r.Status != s {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockListingRepo) Get(_ context.Context, _ listing.Domain, id string) (*listing.Row, error) {
	r, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mockListingRepo) Insert(_ context.Context, _ listing.Domain, row listing.Row) (*listing.Row, error) {
	row.ID = uuid.NewString()
	row.CreatedAt = time.Now()
	m.rows[row.ID] = row
	return &row, nil
}

func (m *mockListingRepo) Update(_ context.Context, _ listing.Domain, row listing.Row) (*listing.Row, error) {
	existing, ok := m.rows[row.ID]
	if !ok || existing.UserID != row.UserID {
		return nil, nil
	}
	row.CreatedAt = existing.CreatedAt
	m.rows[row.ID] = row
	return &row, nil
}

func (m *mockListingRepo) Delete(_ context.Context, _ listing.Domain, id, userID string) (bool, error) {
	existing, ok := m.rows[id]
	if !ok || existing.UserID != userID {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

type mockPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockPublisher) Close() error { return nil }
