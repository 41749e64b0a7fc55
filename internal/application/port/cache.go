package port

import (
	"context"
	"encoding/json"
	"time"

	"folio/internal/domain/model"
)

// CacheStore is a key -> value store with a last-refreshed timestamp per key.
// Entries are never expired by the store itself: staleness is decided by the
// reader's TTL class, and stale values must stay servable as a fallback.
type CacheStore interface {
	Get(ctx context.Context, key string) (value json.RawMessage, refreshedAt time.Time, found bool, err error)
	Upsert(ctx context.Context, key string, value json.RawMessage, refreshedAt time.Time) error
	Close() error
}

// AssetCatalog is the relational projection of list-shaped upstream
// resources. UpsertBatch commits one batch as its own transaction, so a
// failure partway through a large list leaves earlier batches durable.
type AssetCatalog interface {
	UpsertBatch(ctx context.Context, assets []model.Asset) error
	Get(ctx context.Context, id string) (*model.Asset, error)
	List(ctx context.Context) ([]model.Asset, error)
	Close() error
}
