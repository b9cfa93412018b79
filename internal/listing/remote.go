package listing

import (
	"context"
	"sort"
	"time"
)

// Row is a listing as the remote store holds it.
type Row struct {
	ID              string    `json:"id,omitempty"`
	UserID          string    `json:"user_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Price           int64     `json:"price"`
	Category        string    `json:"category"`
	City            string    `json:"city"`
	Images          []string  `json:"images"`
	ContactPhone    string    `json:"contact_phone"`
	ContactTelegram string    `json:"contact_telegram"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// Filter narrows a remote select. The zero value means active listings only.
type Filter struct {
	Status    Status
	AnyStatus bool
	Category  string
	City      string
	UserID    string
}

// IsDefault reports whether f is the plain feed query whose result replaces
// the domain cache.
func (f Filter) IsDefault() bool {
	return f == Filter{} || f == Filter{Status: StatusActive}
}

// EffectiveStatus is the status the remote select filters on, empty for any.
func (f Filter) EffectiveStatus() Status {
	if f.AnyStatus {
		return ""
	}
	if f.Status == "" {
		return StatusActive
	}
	return f.Status
}

// RemoteStore is the hosted row store. Implementations return rows newest
// first.
type RemoteStore interface {
	List(ctx context.Context, d Domain, f Filter) ([]Row, error)
	Insert(ctx context.Context, d Domain, row Row) (Row, error)
	Update(ctx context.Context, d Domain, row Row) (Row, error)
	// Delete removes id; a missing id is not an error.
	Delete(ctx context.Context, d Domain, id string) error
}

func ToRow(l Listing) Row {
	images := l.Images
	if images == nil {
		images = []string{}
	}
	return Row{
		ID:              l.ID,
		UserID:          l.OwnerID,
		Title:           l.Title,
		Description:     l.Description,
		Price:           l.Price,
		Category:        l.Category,
		City:            l.City,
		Images:          images,
		ContactPhone:    l.Contact.Phone,
		ContactTelegram: l.Contact.Telegram,
		Status:          l.Status,
		CreatedAt:       l.CreatedAt,
	}
}

func FromRow(r Row) Listing {
	status := r.Status
	if status == "" {
		status = StatusActive
	}
	return Listing{
		ID:          r.ID,
		Origin:      OriginRemote,
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Category:    r.Category,
		City:        r.City,
		Contact:     Contact{Phone: r.ContactPhone, Telegram: r.ContactTelegram},
		Images:      r.Images,
		OwnerID:     r.UserID,
		CreatedAt:   r.CreatedAt,
		Status:      status,
	}
}

// sortNewestFirst orders by creation time descending; equal timestamps keep
// their incoming order.
func sortNewestFirst(ls []Listing) {
	sort.SliceStable(ls, func(i, j int) bool {
		return ls[i].CreatedAt.After(ls[j].CreatedAt)
	})
}

func (f Filter) matches(l Listing) bool {
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.Category != "" && l.Category != f.Category {
		return false
	}
	if f.City != "" && l.City != f.City {
		return false
	}
	if f.UserID != "" && l.OwnerID != f.UserID {
		return false
	}
	return true
}
