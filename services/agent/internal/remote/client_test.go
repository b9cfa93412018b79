package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/internal/listing"
	"github.com/diagnosis/ukrbe-market/internal/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct {
	token string
	anon  string
}

func (c staticCreds) Token(context.Context) string { return c.token }

func (c staticCreds) AnonymousID(context.Context) (string, error) { return c.anon, nil }

func newTestClient(t *testing.T, h http.HandlerFunc, creds Credentials) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", creds)
}

func TestList_EncodesFilterAndDecodes(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/listings/food_items", r.URL.Path)
		assert.Equal(t, "Brussels", r.URL.Query().Get("city"))
		assert.Equal(t, "true", r.URL.Query().Get("any_status"))
		assert.Empty(t, r.URL.Query().Get("status"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"listings": []listing.Row{{ID: "a", Title: "Borscht", City: "Brussels", CreatedAt: created}},
		})
	}, nil)

	rows, err := c.List(context.Background(), listing.Food, listing.Filter{AnyStatus: true, City: "Brussels"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Borscht", rows[0].Title)
	assert.True(t, rows[0].CreatedAt.Equal(created))
}

func TestList_EmptyResponseIsEmptySlice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, nil)

	rows, err := c.List(context.Background(), listing.Products, listing.Filter{})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestInsert_SendsBearerWhenSignedIn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-Anonymous-ID"))

		var row listing.Row
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		row.ID = "11111111-2222-3333-4444-555555555555"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(row)
	}, staticCreds{token: "tok", anon: "local-x"})

	row, err := c.Insert(context.Background(), listing.Products, listing.Row{Title: "Bike"})
	require.NoError(t, err)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", row.ID)
	assert.Equal(t, "Bike", row.Title)
}

func TestUpdate_SendsAnonymousIDWhenSignedOut(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/listings/rentals/abc", r.URL.Path)
		assert.Equal(t, "local-x", r.Header.Get("X-Anonymous-ID"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"abc","title":"Room"}`))
	}, staticCreds{anon: "local-x"})

	row, err := c.Update(context.Background(), listing.Rentals, listing.Row{ID: "abc", Title: "Room"})
	require.NoError(t, err)
	assert.Equal(t, "Room", row.Title)
}

func TestDelete_NotFoundIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"listing not found","code":"NOT_FOUND"}`))
	}, staticCreds{anon: "local-x"})

	assert.NoError(t, c.Delete(context.Background(), listing.Products, "abc"))
}

func TestErrors_MapToKinds(t *testing.T) {
	resetAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		status int
		body   string
		kind   apperr.Kind
	}{
		{"validation", http.StatusBadRequest, `{"error":"title is required"}`, apperr.KindValidation},
		{"unauthorized", http.StatusUnauthorized, `{"error":"sign in"}`, apperr.KindUnauthorized},
		{"forbidden", http.StatusForbidden, `{"error":"not yours"}`, apperr.KindForbidden},
		{"rate limit", http.StatusTooManyRequests, `{"error":"slow down","reset_at":"2024-03-01T12:00:00Z"}`, apperr.KindRateLimit},
		{"server", http.StatusInternalServerError, `oops`, apperr.KindService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			err := c.SendOTP(context.Background(), "+32470123456")
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))

			if tt.kind == apperr.KindRateLimit {
				var ae *apperr.Error
				require.ErrorAs(t, err, &ae)
				assert.True(t, ae.ResetAt.Equal(resetAt))
				assert.Equal(t, "slow down", ae.Message)
			}
		})
	}
}

func TestUnreachableBackendIsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil)
	_, err := c.List(context.Background(), listing.Products, listing.Filter{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindService, apperr.KindOf(err))
}

func TestVerifyOTP_MapsSessionAndProfile(t *testing.T) {
	expires := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/otp/verify", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+32470123456", body["phone"])
		assert.Equal(t, "123456", body["code"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "jwt",
			"expires_at":   expires,
			"user_id":      "u1",
			"profile": map[string]any{
				"id":             "u1",
				"phone":          "+32470123456",
				"name":           "Olena",
				"phone_verified": true,
			},
		})
	}, nil)

	session, profile, err := c.VerifyOTP(context.Background(), "+32470123456", "123456")
	require.NoError(t, err)
	assert.Equal(t, otp.Session{UserID: "u1", Phone: "+32470123456", Token: "jwt", ExpiresAt: expires}, session)
	assert.Equal(t, "Olena", profile.Name)
	assert.True(t, profile.PhoneVerified)
}

func TestUpdateProfile_OmitsEmptyFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Olena", body["name"])
		_, hasCity := body["city"]
		assert.False(t, hasCity)

		_, _ = w.Write([]byte(`{"id":"u1","name":"Olena","phone":"+32470123456"}`))
	}, nil)

	p, err := c.UpdateProfile(context.Background(), "jwt", otp.Profile{Name: "Olena"})
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
}
