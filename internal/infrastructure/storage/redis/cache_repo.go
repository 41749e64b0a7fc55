package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"folio/internal/application/port"
)

// CacheRepo stores market-data cache entries in one redis hash:
// field = resource key, value = JSON envelope with the payload and its
// refresh timestamp. The hash carries no redis TTL: staleness is decided by
// readers, and stale entries must remain servable when upstream is down.
type CacheRepo struct {
	rdb      *redis.Client
	keyCache string // prefix + ":cache"
}

type envelope struct {
	Value       json.RawMessage `json:"value"`
	RefreshedAt int64           `json:"refreshed_at_ms"`
}

func New(rdb *redis.Client, prefix string) *CacheRepo {
	return &CacheRepo{
		rdb:      rdb,
		keyCache: prefix + ":cache",
	}
}

func (r *CacheRepo) Get(ctx context.Context, key string) (json.RawMessage, time.Time, bool, error) {
	raw, err := r.rdb.HGet(ctx, r.keyCache, key).Result()
	if err == redis.Nil {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, time.Time{}, false, err
	}
	return env.Value, time.UnixMilli(env.RefreshedAt), true, nil
}

func (r *CacheRepo) Upsert(ctx context.Context, key string, value json.RawMessage, refreshedAt time.Time) error {
	b, err := json.Marshal(envelope{Value: value, RefreshedAt: refreshedAt.UnixMilli()})
	if err != nil {
		return err
	}
	return r.rdb.HSet(ctx, r.keyCache, key, string(b)).Err()
}

func (r *CacheRepo) Close() error { return nil }

var _ port.CacheStore = (*CacheRepo)(nil)
