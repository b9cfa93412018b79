// Package kv is the device-local key-value persistence used by the agent.
// Values are JSON documents addressed by string keys.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/ukrbe-market/pkg/logger"
)

// Store loads and saves JSON values by key.
type Store interface {
	// Load decodes the value under key into dst. It reports false when the
	// key is absent, leaving dst untouched so callers can pre-fill defaults.
	Load(ctx context.Context, key string, dst any) (bool, error)

	// Save encodes value and stores it under key.
	Save(ctx context.Context, key string, value any) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// raw is implemented by every driver; Store methods share the JSON and
// logging code below.
type raw interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	put(ctx context.Context, key string, value []byte) error
	del(ctx context.Context, key string) error
	close() error
}

type store struct {
	driver string
	r      raw
}

func (s *store) Load(ctx context.Context, key string, dst any) (bool, error) {
	data, found, err := s.r.get(ctx, key)
	if err != nil {
		logger.ErrorContext(ctx, "kv load failed", "driver", s.driver, "key", key, "error", err)
		return false, fmt.Errorf("kv load %q: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		logger.ErrorContext(ctx, "kv value is not valid JSON", "driver", s.driver, "key", key, "error", err)
		return false, fmt.Errorf("kv decode %q: %w", key, err)
	}
	return true, nil
}

func (s *store) Save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv encode %q: %w", key, err)
	}
	if err := s.r.put(ctx, key, data); err != nil {
		logger.ErrorContext(ctx, "kv save failed", "driver", s.driver, "key", key, "bytes", len(data), "error", err)
		return fmt.Errorf("kv save %q: %w", key, err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	if err := s.r.del(ctx, key); err != nil {
		logger.ErrorContext(ctx, "kv delete failed", "driver", s.driver, "key", key, "error", err)
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (s *store) Close() error {
	return s.r.close()
}

// Options select and configure a driver.
type Options struct {
	Driver        string // sqlite, redis or memory
	Path          string // sqlite file
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// Open returns the Store for opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.KeyPrefix)
	case "sqlite", "":
		return NewSQLiteStore(opts.Path)
	default:
		return nil, fmt.Errorf("unknown kv driver %q", opts.Driver)
	}
}
