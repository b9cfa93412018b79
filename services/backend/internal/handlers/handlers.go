package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/diagnosis/ukrbe-market/internal/http/response"
	"github.com/diagnosis/ukrbe-market/pkg/auth"
	"github.com/diagnosis/ukrbe-market/pkg/config"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/domain"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/service"
	"github.com/go-chi/chi/v5"
)

// AnonymousHeader carries a device owner id for requests without a session.
const AnonymousHeader = "X-Anonymous-ID"

type ctxKey string

const (
	claimsKey ctxKey = "claims"
	actorKey  ctxKey = "actor"
)

type Handlers struct {
	authService    service.AuthService
	listingService service.ListingService
	config         *config.Config
}

func New(authService service.AuthService, listingService service.ListingService, config *config.Config) *Handlers {
	return &Handlers{
		authService:    authService,
		listingService: listingService,
		config:         config,
	}
}

// Routes mounts the backend API on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/otp", h.RequestOTP)
		r.Post("/otp/verify", h.VerifyOTP)
	})

	r.Route("/profiles", func(r chi.Router) {
		r.Use(h.RequireJWT)
		r.Get("/me", h.GetMyProfile)
		r.Patch("/me", h.UpdateMyProfile)
	})

	r.Route("/listings/{domain}", func(r chi.Router) {
		r.Use(h.ResolveActor)
		r.Get("/", h.ListListings)
		r.Post("/", h.CreateListing)
		r.Put("/{id}", h.UpdateListing)
		r.Delete("/{id}", h.DeleteListing)
	})
}

// RequireJWT rejects requests without a valid session token.
func (h *Handlers) RequireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", response.CodeUnauthorized)
			return
		}

		claims, err := auth.Parse(strings.TrimPrefix(authHeader, "Bearer "), h.config.Auth.JWTSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", response.CodeInvalidToken)
			return
		}

		ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
		ctx = context.WithValue(ctx, claimsKey, claims)
		ctx = context.WithValue(ctx, actorKey, claims.Sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ResolveActor identifies who is writing: the session subject when a bearer
// token is present, otherwise an anonymous device id. Reads need neither.
func (h *Handlers) ResolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			h.RequireJWT(next).ServeHTTP(w, r)
			return
		}

		if anon := strings.TrimSpace(r.Header.Get(AnonymousHeader)); strings.HasPrefix(anon, domain.AnonymousPrefix) {
			ctx := context.WithValue(r.Context(), actorKey, anon)
			ctx = context.WithValue(ctx, logger.UserIDKey, anon)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// Helper functions
func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func getActor(r *http.Request) string {
	actor, _ := r.Context().Value(actorKey).(string)
	return actor
}

// decodeJSON reads a body of at most 8 MiB; listing images travel inline.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response.WriteJSON(w, statusCode, data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	response.WriteError(w, statusCode, message, code)
}
