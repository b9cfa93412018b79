// Package handlers serves the agent's localhost API to the web UI.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/diagnosis/ukrbe-market/internal/http/response"
	"github.com/diagnosis/ukrbe-market/internal/listing"
	"github.com/diagnosis/ukrbe-market/internal/otp"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	syncer    *listing.Syncer
	favorites *listing.Favorites
	gate      *otp.Gate
}

func New(syncer *listing.Syncer, favorites *listing.Favorites, gate *otp.Gate) *Handlers {
	return &Handlers{
		syncer:    syncer,
		favorites: favorites,
		gate:      gate,
	}
}

// Routes mounts the agent API on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/status", h.Status)

	r.Route("/listings/{domain}", func(r chi.Router) {
		r.Get("/", h.LoadListings)
		r.Post("/", h.SaveListing)
		r.Delete("/{id}", h.DeleteListing)
	})

	r.Route("/favorites/{domain}", func(r chi.Router) {
		r.Get("/", h.ListFavorites)
		r.Post("/{id}/toggle", h.ToggleFavorite)
	})

	r.Route("/login", func(r chi.Router) {
		r.Get("/", h.LoginState)
		r.Post("/send", h.SendCode)
		r.Post("/resend", h.ResendCode)
		r.Post("/change-number", h.ChangeNumber)
		r.Post("/verify", h.VerifyCode)
		r.Post("/name", h.SubmitName)
		r.Post("/signout", h.SignOut)
	})

	r.Get("/profile", h.GetProfile)
	r.Patch("/profile", h.UpdateProfile)
}

type statusResponse struct {
	Mode              listing.Mode `json:"mode"`
	BackendConfigured bool         `json:"backendConfigured"`
	SignedIn          bool         `json:"signedIn"`
	UserID            string       `json:"userId,omitempty"`
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	userID := h.gate.UserID(r.Context())
	writeJSON(w, http.StatusOK, statusResponse{
		Mode:              h.syncer.Mode(),
		BackendConfigured: h.gate.Configured(),
		SignedIn:          userID != "",
		UserID:            userID,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response.WriteJSON(w, statusCode, data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	response.WriteError(w, statusCode, message, code)
}
