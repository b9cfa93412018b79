package repository

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/diagnosis/ukrbe-market/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// SMSQuotaRepository caps texts per phone on the server, independent of any
// client-side limit.
type SMSQuotaRepository interface {
	Allow(ctx context.Context, phone string, limit int, window time.Duration) (bool, error)
	// Release returns a slot taken by Allow for a send that did not happen.
	Release(ctx context.Context, phone string) error
}

type smsQuotaRepository struct {
	client *redis.Client
	prefix string
}

func NewSMSQuotaRepository(client *redis.Client, prefix string) SMSQuotaRepository {
	return &smsQuotaRepository{client: client, prefix: prefix}
}

func (r *smsQuotaRepository) Allow(ctx context.Context, phone string, limit int, window time.Duration) (bool, error) {
	key := r.key(phone)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		// On Redis error, allow the request (fail open)
		logger.WarnContext(ctx, "sms quota check failed", "error", err)
		return true, nil
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			logger.WarnContext(ctx, "sms quota expiry not set", "error", err)
		}
	}
	return count <= int64(limit), nil
}

func (r *smsQuotaRepository) Release(ctx context.Context, phone string) error {
	key := r.key(phone)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	count, err := r.client.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to release sms quota: %w", err)
	}
	// The window expired in between; DECR recreated the key without a TTL.
	if count < 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear sms quota: %w", err)
		}
	}
	return nil
}

// key hashes the phone for privacy.
func (r *smsQuotaRepository) key(phone string) string {
	return fmt.Sprintf("%s:sms:%x", r.prefix, sha256.Sum256([]byte(phone)))
}
