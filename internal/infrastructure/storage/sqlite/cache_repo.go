package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"folio/internal/application/port"
)

// CacheRepo is the durable sqlite mirror of the market-data cache. It backs
// the redis store so cached values survive a cache flush, and serves as the
// only cache in single-binary deployments.
type CacheRepo struct {
	db *sql.DB
}

func NewCacheRepo(db *sql.DB) *CacheRepo {
	return &CacheRepo{db: db}
}

func (r *CacheRepo) Get(ctx context.Context, key string) (json.RawMessage, time.Time, bool, error) {
	var value string
	var refreshedAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT value, refreshed_at_ms FROM cache_entries WHERE key=?`, key).
		Scan(&value, &refreshedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return json.RawMessage(value), time.UnixMilli(refreshedAt), true, nil
}

func (r *CacheRepo) Upsert(ctx context.Context, key string, value json.RawMessage, refreshedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_entries(key, value, refreshed_at_ms)
		VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		value=excluded.value, refreshed_at_ms=excluded.refreshed_at_ms
	`, key, string(value), refreshedAt.UnixMilli())
	return err
}

func (r *CacheRepo) Close() error { return nil }

var _ port.CacheStore = (*CacheRepo)(nil)
