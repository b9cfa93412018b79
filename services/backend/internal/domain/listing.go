package domain

import (
	"fmt"
	"strings"

	"github.com/diagnosis/ukrbe-market/internal/listing"
)

// AnonymousPrefix marks owner ids minted on a device without a session.
const AnonymousPrefix = "local-"

// ListingRequest is the body of a create or update.
type ListingRequest struct {
	listing.Row
}

func (r *ListingRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.TrimSpace(r.Category)
	r.City = strings.TrimSpace(r.City)
	r.ContactPhone = strings.TrimSpace(r.ContactPhone)
	r.ContactTelegram = strings.TrimPrefix(strings.TrimSpace(r.ContactTelegram), "@")
	if r.Status == "" {
		r.Status = listing.StatusActive
	}
	if r.Images == nil {
		r.Images = []string{}
	}
}

func (r *ListingRequest) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if r.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if len(r.Images) > listing.MaxImages {
		return fmt.Errorf("at most %d images are allowed", listing.MaxImages)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	return nil
}

type ListingsResponse struct {
	Listings []listing.Row `json:"listings"`
}
