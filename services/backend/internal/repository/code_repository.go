package repository

import (
	"context"
	"errors"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CodeRepository interface {
	// Create stores a hashed code for phone and retires earlier unused ones.
	Create(ctx context.Context, phone, codeHash string, expiresAt time.Time) error
	// Check consumes the latest code for phone when code matches. Wrong codes
	// count against maxAttempts.
	Check(ctx context.Context, phone, code string, maxAttempts int) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type codeRepository struct {
	pool *pgxpool.Pool
}

func NewCodeRepository(pool *pgxpool.Pool) CodeRepository {
	return &codeRepository{pool: pool}
}

func (r *codeRepository) Create(ctx context.Context, phone, codeHash string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE phone_codes SET used_at = now() WHERE phone = $1 AND used_at IS NULL`, phone); err != nil {
		return err
	}
	const q = `
		INSERT INTO phone_codes (phone, code_hash, expires_at)
		VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, q, phone, codeHash, expiresAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *codeRepository) Check(ctx context.Context, phone, code string, maxAttempts int) (bool, error) {
	const q = `
		SELECT id, code_hash, expires_at, used_at, attempts
		FROM phone_codes
		WHERE phone = $1
		ORDER BY id DESC
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		id       int64
		hash     string
		expires  time.Time
		used     *time.Time
		attempts int
	)

	err := r.pool.QueryRow(ctx, q, phone).Scan(&id, &hash, &expires, &used, &attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if used != nil || time.Now().After(expires) || attempts >= maxAttempts {
		return false, nil
	}

	match, err := argon2id.ComparePasswordAndHash(code, hash)
	if err != nil {
		return false, err
	}
	if !match {
		_, _ = r.pool.Exec(ctx, `UPDATE phone_codes SET attempts = attempts + 1 WHERE id = $1`, id)
		return false, nil
	}

	// Only one concurrent verification may consume the code.
	tag, err := r.pool.Exec(ctx, `UPDATE phone_codes SET used_at = now() WHERE id = $1 AND used_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *codeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `
		DELETE FROM phone_codes
		WHERE expires_at < now() - interval '1 day'`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
