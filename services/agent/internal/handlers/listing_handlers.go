package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/internal/http/response"
	"github.com/diagnosis/ukrbe-market/internal/listing"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// listingView decorates a listing with per-device flags.
type listingView struct {
	listing.Listing
	IsOwner    bool `json:"isOwner"`
	IsFavorite bool `json:"isFavorite"`
}

type listingsResponse struct {
	Listings []listingView `json:"listings"`
	// Notice is set when the listings came from the cache.
	Notice   string `json:"notice,omitempty"`
}

func parseDomain(w http.ResponseWriter, r *http.Request) (listing.Domain, bool) {
	d, err := listing.ParseDomain(chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown listing domain", response.CodeNotFound)
		return "", false
	}
	return d, true
}

func parseFilter(r *http.Request) (listing.Filter, bool) {
	q := r.URL.Query()
	f := listing.Filter{
		Status:   listing.Status(q.Get("status")),
		Category: q.Get("category"),
		City:     q.Get("city"),
		UserID:   q.Get("user_id"),
	}
	if v := q.Get("any_status"); v != "" {
		anyStatus, err := strconv.ParseBool(v)
		if err != nil {
			return listing.Filter{}, false
		}
		f.AnyStatus = anyStatus
	}
	if f.Status != "" && !f.Status.Valid() {
		return listing.Filter{}, false
	}
	return f, true
}

func (h *Handlers) LoadListings(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDomain(w, r)
	if !ok {
		return
	}
	f, ok := parseFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid filter", response.CodeInvalidInput)
		return
	}

	ctx := r.Context()
	listings, err := h.syncer.Load(ctx, d, f)
	resp := listingsResponse{}
	if err != nil {
		if !errors.Is(err, listing.ErrStale) {
			response.FromError(w, r, err)
			return
		}
		resp.Notice = notice(err)
	}

	// Ownership needs a session; anonymous device ids never own anything here.
	userID := h.gate.UserID(ctx)
	favs, err := h.favorites.List(ctx, d)
	if err != nil {
		logger.WarnContext(ctx, "could not read favorites", "domain", d, "error", err)
	}
	favSet := make(map[string]bool, len(favs))
	for _, id := range favs {
		favSet[id] = true
	}

	resp.Listings = make([]listingView, 0, len(listings))
	for _, l := range listings {
		resp.Listings = append(resp.Listings, listingView{
			Listing:    l,
			IsOwner:    listing.IsOwner(l, userID),
			IsFavorite: favSet[l.ID],
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// notice is the user-facing text of a stale load.
func notice(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return listing.ErrStale.Error()
}

// SaveListing creates the listing, or updates it when the body carries an id.
func (h *Handlers) SaveListing(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDomain(w, r)
	if !ok {
		return
	}

	var l listing.Listing
	if err := decodeJSON(w, r, &l); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return
	}

	saved, err := h.syncer.Save(r.Context(), d, l)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	status := http.StatusOK
	if l.ID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

func (h *Handlers) DeleteListing(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDomain(w, r)
	if !ok {
		return
	}

	if err := h.syncer.Delete(r.Context(), d, chi.URLParam(r, "id")); err != nil {
		response.FromError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListFavorites(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDomain(w, r)
	if !ok {
		return
	}

	ids, err := h.favorites.List(r.Context(), d)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ids": ids})
}

func (h *Handlers) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDomain(w, r)
	if !ok {
		return
	}

	on, err := h.favorites.Toggle(r.Context(), d, chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"favorite": on})
}
