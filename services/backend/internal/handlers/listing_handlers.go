package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/diagnosis/ukrbe-market/internal/http/response"
	"github.com/diagnosis/ukrbe-market/internal/listing"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/domain"
	"github.com/go-chi/chi/v5"
)

func parseDomain(w http.ResponseWriter, r *http.Request) (listing.Domain, bool) {
	d, err := listing.ParseDomain(chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown listing domain", response.CodeNotFound)
		return "", false
	}
	return d, true
}

// parseFilter reads status, any_status, category, city and user_id.
func parseFilter(r *http.Request) (listing.Filter, error) {
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
			return listing.Filter{}, err
		}
		f.AnyStatus = anyStatus
	}
	if f.Status != "" && !f.Status.Valid() {
		return listing.Filter{}, fmt.Errorf("unknown status %q", f.Status)
	}
	return f, nil
}

func (h *Handlers) ListListings(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDomain(w, r)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", response.CodeInvalidInput)
		return
	}

	rows, err := h.listingService.List(r.Context(), d, f)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.ListingsResponse{Listings: rows})
}

func (h *Handlers) CreateListing(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDomain(w, r)
	if !ok {
		return
	}

	var req domain.ListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return
	}

	row, err := h.listingService.Create(r.Context(), d, getActor(r), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, row)
}

func (h *Handlers) UpdateListing(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDomain(w, r)
	if !ok {
		return
	}

	var req domain.ListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", response.CodeInvalidInput)
		return
	}

	row, err := h.listingService.Update(r.Context(), d, getActor(r), chi.URLParam(r, "id"), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, row)
}

func (h *Handlers) DeleteListing(w http.ResponseWriter, r *http.Request) {
	d, ok := parseDomain(w, r)
	if !ok {
		return
	}

	if err := h.listingService.Delete(r.Context(), d, getActor(r), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
