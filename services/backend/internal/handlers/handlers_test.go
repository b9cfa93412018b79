package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/internal/http/response"
	"github.com/diagnosis/ukrbe-market/internal/listing"
	"github.com/diagnosis/ukrbe-market/pkg/auth"
	"github.com/diagnosis/ukrbe-market/pkg/config"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetDefault(logger.New(io.Discard, "error"))
}

const testSecret = "handler-secret"

type mockAuthService struct {
	requestErr error
	lastPhone  string
}

func (m *mockAuthService) RequestCode(_ context.Context, req *domain.OTPRequest) error {
	req.Normalize()
	m.lastPhone = req.Phone
	return m.requestErr
}

func (m *mockAuthService) VerifyCode(_ context.Context, req *domain.OTPVerifyRequest) (*domain.SessionResponse, error) {
	if req.Code != "123456" {
		return nil, apperr.Unauthorized("Invalid or expired code")
	}
	return &domain.SessionResponse{AccessToken: "tok", UserID: "u1", Profile: &domain.Profile{ID: "u1"}}, nil
}

func (m *mockAuthService) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	return &domain.Profile{ID: id, Name: "Taras"}, nil
}

func (m *mockAuthService) UpdateProfile(_ context.Context, id string, req *domain.UpdateProfileRequest) (*domain.Profile, error) {
	p := &domain.Profile{ID: id}
	if req.Name != nil {
		p.Name = *req.Name
	}
	return p, nil
}

type mockListingService struct {
	lastFilter listing.Filter
	lastActor  string
	lastDomain listing.Domain
}

func (m *mockListingService) List(_ context.Context, d listing.Domain, f listing.Filter) ([]listing.Row, error) {
	m.lastDomain, m.lastFilter = d, f
	return []listing.Row{{ID: "a", Title: "Bike"}}, nil
}

func (m *mockListingService) Create(_ context.Context, d listing.Domain, actor string, req *domain.ListingRequest) (*listing.Row, error) {
	m.lastDomain, m.lastActor = d, actor
	if actor == "" {
		return nil, apperr.Unauthorized("Sign in or send a device id to post a listing")
	}
	row := req.Row
	row.ID = "3f2b8c1e-1d2a-4c5b-9e8f-0a1b2c3d4e5f"
	row.UserID = actor
	return &row, nil
}

func (m *mockListingService) Update(_ context.Context, d listing.Domain, actor, id string, req *domain.ListingRequest) (*listing.Row, error) {
	m.lastDomain, m.lastActor = d, actor
	row := req.Row
	row.ID = id
	row.UserID = actor
	return &row, nil
}

func (m *mockListingService) Delete(_ context.Context, d listing.Domain, actor, _ string) error {
	m.lastDomain, m.lastActor = d, actor
	return nil
}

func newTestRouter(authSvc *mockAuthService, listingSvc *mockListingService) http.Handler {
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: testSecret}}
	h := New(authSvc, listingSvc, cfg)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, sub string) map[string]string {
	t.Helper()
	token, _, err := auth.NewSessionToken(sub, "+32470123456", testSecret, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestRequestOTP(t *testing.T) {
	authSvc := &mockAuthService{}
	router := newTestRouter(authSvc, &mockListingService{})

	rec := doJSON(t, router, http.MethodPost, "/auth/otp", map[string]string{"phone": "0470 12 34 56"}, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "+32470123456", authSvc.lastPhone)

	authSvc.requestErr = apperr.RateLimited("Too many codes", time.Now().Add(time.Hour))
	rec = doJSON(t, router, http.MethodPost, "/auth/otp", map[string]string{"phone": "0470123456"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body response.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, response.CodeRateLimit, body.Code)
	assert.NotNil(t, body.ResetAt)
}

func TestRequestOTP_BadJSON(t *testing.T) {
	router := newTestRouter(&mockAuthService{}, &mockListingService{})
	req := httptest.NewRequest(http.MethodPost, "/auth/otp", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyOTP(t *testing.T) {
	router := newTestRouter(&mockAuthService{}, &mockListingService{})

	rec := doJSON(t, router, http.MethodPost, "/auth/otp/verify", domain.OTPVerifyRequest{Phone: "+32470123456", Code: "123456"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var session domain.SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	assert.Equal(t, "tok", session.AccessToken)

	rec = doJSON(t, router, http.MethodPost, "/auth/otp/verify", domain.OTPVerifyRequest{Phone: "+32470123456", Code: "000000"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfiles_RequireJWT(t *testing.T) {
	router := newTestRouter(&mockAuthService{}, &mockListingService{})

	rec := doJSON(t, router, http.MethodGet, "/profiles/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/profiles/me", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/profiles/me", nil, bearer(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var p domain.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, "u1", p.ID)

	name := "Oksana"
	rec = doJSON(t, router, http.MethodPatch, "/profiles/me", domain.UpdateProfileRequest{Name: &name}, bearer(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, "Oksana", p.Name)
}

func TestListListings_ParsesFilter(t *testing.T) {
	listingSvc := &mockListingService{}
	router := newTestRouter(&mockAuthService{}, listingSvc)

	rec := doJSON(t, router, http.MethodGet, "/listings/food_items?city=Gent&any_status=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, listing.Food, listingSvc.lastDomain)
	assert.Equal(t, listing.Filter{City: "Gent", AnyStatus: true}, listingSvc.lastFilter)

	var body domain.ListingsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Listings, 1)

	rec = doJSON(t, router, http.MethodGet, "/listings/services", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/listings/products?status=lost", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteListings_ResolveActor(t *testing.T) {
	listingSvc := &mockListingService{}
	router := newTestRouter(&mockAuthService{}, listingSvc)
	body := listing.Row{Title: "Bike", Price: 50}

	rec := doJSON(t, router, http.MethodPost, "/listings/products", body, map[string]string{AnonymousHeader: "local-lq2x9k0abc123"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "local-lq2x9k0abc123", listingSvc.lastActor)

	rec = doJSON(t, router, http.MethodPost, "/listings/products", body, map[string]string{AnonymousHeader: "someone-else"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	id := "3f2b8c1e-1d2a-4c5b-9e8f-0a1b2c3d4e5f"
	rec = doJSON(t, router, http.MethodPut, "/listings/rentals/"+id, body, bearer(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", listingSvc.lastActor)
	assert.Equal(t, listing.Rentals, listingSvc.lastDomain)

	rec = doJSON(t, router, http.MethodDelete, "/listings/rentals/"+id, nil, bearer(t, "u1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/listings/rentals/"+id, nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
