// Package dedup remembers webhook update IDs so a redelivered update is
// answered only once.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shopbot/internal/config"
)

// Store records keys for a TTL. Seen records key and reports whether it was
// already recorded and not yet expired. Seen must be atomic per key. Forget
// drops a key so a failed update can be processed again on redelivery.
type Store interface {
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// New builds the configured backend. Backend "none" returns a nil Store.
func New(cfg config.DedupConfig, logger *slog.Logger) (Store, error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(ttl), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath, ttl, logger)
	case "redis":
		return NewRedis(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      ttl,
		}), nil
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Backend)
	}
}
