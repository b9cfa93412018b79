package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/listing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ListingRepository interface {
	List(ctx context.Context, d listing.Domain, f listing.Filter) ([]listing.Row, error)
	// Get returns nil when id does not exist.
	Get(ctx context.Context, d listing.Domain, id string) (*listing.Row, error)
	Insert(ctx context.Context, d listing.Domain, row listing.Row) (*listing.Row, error)
	// Update rewrites the row if it belongs to row.UserID; nil when no row matched.
	Update(ctx context.Context, d listing.Domain, row listing.Row) (*listing.Row, error)
	// Delete reports whether a row owned by userID was removed.
	Delete(ctx context.Context, d listing.Domain, id, userID string) (bool, error)
}

type listingRepository struct {
	pool *pgxpool.Pool
}

func NewListingRepository(pool *pgxpool.Pool) ListingRepository {
	return &listingRepository{pool: pool}
}

// categoryColumn is where a domain keeps its category.
func categoryColumn(d listing.Domain) string {
	if d == listing.Rentals {
		return "rental_type"
	}
	return "category"
}

func listingCols(d listing.Domain) string {
	return `id::text, user_id, title, description, price, ` + categoryColumn(d) +
		`, city, images, contact_phone, contact_telegram, status, created_at`
}

func scanRow(row pgx.Row) (*listing.Row, error) {
	var r listing.Row
	err := row.Scan(
		&r.ID, &r.UserID, &r.Title, &r.Description, &r.Price, &r.Category,
		&r.City, &r.Images, &r.ContactPhone, &r.ContactTelegram, &r.Status, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.Images == nil {
		r.Images = []string{}
	}
	return &r, nil
}

func (r *listingRepository) List(ctx context.Context, d listing.Domain, f listing.Filter) ([]listing.Row, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(col, val string) {
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if status := f.EffectiveStatus(); status != "" {
		add("status", string(status))
	}
	if f.Category != "" {
		add(categoryColumn(d), f.Category)
	}
	if f.City != "" {
		add("city", f.City)
	}
	if f.UserID != "" {
		add("user_id", f.UserID)
	}

	q := `SELECT ` + listingCols(d) + ` FROM ` + d.Table()
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []listing.Row{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (r *listingRepository) Get(ctx context.Context, d listing.Domain, id string) (*listing.Row, error) {
	q := `SELECT ` + listingCols(d) + ` FROM ` + d.Table() + ` WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	row, err := scanRow(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return row, err
}

func (r *listingRepository) Insert(ctx context.Context, d listing.Domain, row listing.Row) (*listing.Row, error) {
	q := `
		INSERT INTO ` + d.Table() + ` (user_id, title, description, price, ` + categoryColumn(d) + `,
			city, images, contact_phone, contact_telegram, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + listingCols(d)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanRow(r.pool.QueryRow(ctx, q,
		row.UserID, row.Title, row.Description, row.Price, row.Category,
		row.City, row.Images, row.ContactPhone, row.ContactTelegram, string(row.Status),
	))
}

func (r *listingRepository) Update(ctx context.Context, d listing.Domain, row listing.Row) (*listing.Row, error) {
	q := `
		UPDATE ` + d.Table() + `
		SET title = $3, description = $4, price = $5, ` + categoryColumn(d) + ` = $6,
			city = $7, images = $8, contact_phone = $9, contact_telegram = $10, status = $11
		WHERE id = $1 AND user_id = $2
		RETURNING ` + listingCols(d)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	updated, err := scanRow(r.pool.QueryRow(ctx, q,
		row.ID, row.UserID, row.Title, row.Description, row.Price, row.Category,
		row.City, row.Images, row.ContactPhone, row.ContactTelegram, string(row.Status),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return updated, err
}

func (r *listingRepository) Delete(ctx context.Context, d listing.Domain, id, userID string) (bool, error) {
	q := `DELETE FROM ` + d.Table() + ` WHERE id = $1 AND user_id = $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
