package listing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/google/uuid"
)

// Domain is one listing collection.
type Domain string

const (
	Products Domain = "products"
	Food     Domain = "food"
	Rentals  Domain = "rentals"
)

var Domains = []Domain{Products, Food, Rentals}

// ParseDomain accepts the domain name or its remote table name.
func ParseDomain(s string) (Domain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "products":
		return Products, nil
	case "food", "food_items":
		return Food, nil
	case "rentals":
		return Rentals, nil
	default:
		return "", apperr.Validation("unknown listing domain %q", s)
	}
}

// Table is the remote collection name.
func (d Domain) Table() string {
	if d == Food {
		return "food_items"
	}
	return string(d)
}

func (d Domain) cacheKey() string     { return "listings:" + string(d) }
func (d Domain) favoritesKey() string { return "favorites:" + string(d) }

type Status string

const (
	StatusActive   Status = "active"
	StatusReserved Status = "reserved"
	StatusSold     Status = "sold"
	StatusRented   Status = "rented"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusReserved, StatusSold, StatusRented:
		return true
	}
	return false
}

// Origin tags where a listing id came from.
type Origin string

const (
	// OriginDraft ids are minted on the device and never valid remote keys.
	OriginDraft Origin = "draft"
	// OriginRemote ids were assigned by the remote store.
	OriginRemote Origin = "remote"
)

const MaxImages = 5

type Contact struct {
	Phone    string `json:"phone"`
	Telegram string `json:"telegram"`
}

type Listing struct {
	ID          string    `json:"id"`
	Origin      Origin    `json:"origin,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Category    string    `json:"category"`
	City        string    `json:"city"`
	Contact     Contact   `json:"contact"`
	Images      []string  `json:"images"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	Status      Status    `json:"status"`
}

// IsRemoteID reports whether id has the canonical 8-4-4-4-12 UUID shape.
func IsRemoteID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// IsPersisted reports whether saving l must update an existing remote row.
// An explicit draft tag always means create; untagged values fall back to
// the id shape.
func (l Listing) IsPersisted() bool {
	if l.Origin == OriginDraft {
		return false
	}
	return IsRemoteID(l.ID)
}

func (l *Listing) Normalize() {
	l.Title = strings.TrimSpace(l.Title)
	l.Description = strings.TrimSpace(l.Description)
	l.Category = strings.TrimSpace(l.Category)
	l.City = strings.TrimSpace(l.City)
	l.Contact.Phone = strings.TrimSpace(l.Contact.Phone)
	l.Contact.Telegram = strings.TrimPrefix(strings.TrimSpace(l.Contact.Telegram), "@")
	if l.Status == "" {
		l.Status = StatusActive
	}
}

func (l *Listing) Validate() error {
	if l.Title == "" {
		return apperr.Validation("title is required")
	}
	if l.Price < 0 {
		return apperr.Validation("price must not be negative")
	}
	if len(l.Images) > MaxImages {
		return apperr.Validation("at most %d images are allowed", MaxImages)
	}
	if !l.Status.Valid() {
		return apperr.Validation("invalid status %q", l.Status)
	}
	return nil
}

// IsOwner reports whether userID owns l. It is a UI convenience; the remote
// store enforces the real access rules.
func IsOwner(l Listing, userID string) bool {
	return userID != "" && l.OwnerID == userID
}

// UnmarshalJSON also accepts the flat remote field names so caches written
// from raw rows decode into one shape.
func (l *Listing) UnmarshalJSON(data []byte) error {
	type plain Listing
	var aux struct {
		plain
		UserID          string     `json:"user_id"`
		ContactPhone    string     `json:"contact_phone"`
		ContactTelegram string     `json:"contact_telegram"`
		RemoteCreatedAt *time.Time `json:"created_at"`
		RentalType      string     `json:"rental_type"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*l = Listing(aux.plain)
	if l.OwnerID == "" {
		l.OwnerID = aux.UserID
	}
	if l.Contact == (Contact{}) {
		l.Contact = Contact{Phone: aux.ContactPhone, Telegram: aux.ContactTelegram}
	}
	if l.CreatedAt.IsZero() && aux.RemoteCreatedAt != nil {
		l.CreatedAt = *aux.RemoteCreatedAt
	}
	if l.Category == "" {
		l.Category = aux.RentalType
	}
	return nil
}
