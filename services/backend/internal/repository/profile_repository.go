package repository

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/ukrbe-market/services/backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfileRepository interface {
	// UpsertVerified returns the profile for phone, creating it on first
	// login, and marks the phone verified.
	UpsertVerified(ctx context.Context, phone string) (*domain.Profile, error)
	FindByID(ctx context.Context, id string) (*domain.Profile, error)
	Update(ctx context.Context, id string, req *domain.UpdateProfileRequest) (*domain.Profile, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

const profileCols = `id::text, phone, name, city, telegram_username, avatar_url, phone_verified, created_at, updated_at`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.ID, &p.Phone, &p.Name, &p.City, &p.TelegramUsername, &p.AvatarURL,
		&p.PhoneVerified, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepository) UpsertVerified(ctx context.Context, phone string) (*domain.Profile, error) {
	const q = `
		INSERT INTO profiles (phone, phone_verified)
		VALUES ($1, true)
		ON CONFLICT (phone) DO UPDATE SET phone_verified = true, updated_at = now()
		RETURNING ` + profileCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanProfile(r.pool.QueryRow(ctx, q, phone))
}

func (r *profileRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	const q = `SELECT ` + profileCols + ` FROM profiles WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanProfile(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *profileRepository) Update(ctx context.Context, id string, req *domain.UpdateProfileRequest) (*domain.Profile, error) {
	const q = `
		UPDATE profiles
		SET name = COALESCE($2, name),
			city = COALESCE($3, city),
			telegram_username = COALESCE($4, telegram_username),
			avatar_url = COALESCE($5, avatar_url),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + profileCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanProfile(r.pool.QueryRow(ctx, q, id, req.Name, req.City, req.TelegramUsername, req.AvatarURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}
