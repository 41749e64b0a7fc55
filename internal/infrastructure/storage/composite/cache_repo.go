package composite

import (
	"context"
	"encoding/json"
	"time"

	"folio/internal/application/port"
)

// CacheRepo fans cache writes out to every member store and reads from the
// first member that has the key. Put redis first for speed, sqlite second
// for durability; a flushed redis then repopulates from the mirror on read.
type CacheRepo struct {
	stores []port.CacheStore
}

func New(stores ...port.CacheStore) *CacheRepo {
	// nil stores are allowed; filter in constructor for safety
	out := make([]port.CacheStore, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return &CacheRepo{stores: out}
}

func (r *CacheRepo) Get(ctx context.Context, key string) (json.RawMessage, time.Time, bool, error) {
	var firstErr error
	for _, store := range r.stores {
		value, refreshedAt, found, err := store.Get(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if found {
			return value, refreshedAt, true, nil
		}
	}
	return nil, time.Time{}, false, firstErr
}

func (r *CacheRepo) Upsert(ctx context.Context, key string, value json.RawMessage, refreshedAt time.Time) error {
	var firstErr error
	for _, store := range r.stores {
		if err := store.Upsert(ctx, key, value, refreshedAt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *CacheRepo) Close() error {
	var firstErr error
	for _, store := range r.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.CacheStore = (*CacheRepo)(nil)
