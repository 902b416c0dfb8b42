package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

const purgeEvery = 256

// SQLite persists seen keys so redeliveries are caught across restarts.
type SQLite struct {
	db     *sql.DB
	ttl    time.Duration
	writes atomic.Int64
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLite(dbPath string, ttl time.Duration, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db, ttl: ttl, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	if err := s.purge(context.Background()); err != nil {
		logger.Warn("dedup purge failed", "err", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS seen_updates (
		key        TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_seen_updates_expires ON seen_updates(expires_at);`)
	return err
}

// Seen inserts key, or revives it when the stored row has expired. No row
// change means the key is live.
func (s *SQLite) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO seen_updates (key, expires_at) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at
		WHERE seen_updates.expires_at <= ?`,
		key, now.Add(s.ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("record update %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if s.writes.Add(1)%purgeEvery == 0 {
		if err := s.purge(ctx); err != nil {
			s.logger.Warn("dedup purge failed", "err", err)
		}
	}
	return n == 0, nil
}

func (s *SQLite) Forget(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM seen_updates WHERE key = ?`, key); err != nil {
		return fmt.Errorf("forget update %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) purge(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM seen_updates WHERE expires_at <= ?`, s.now().UnixNano())
	return err
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
