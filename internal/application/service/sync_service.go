package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// TTLClass describes the volatility class of a cached resource. TTL is a
// property of the class, not of individual entries. RefreshOnRead false
// means the resource is refreshed only by the scheduled job; reads always
// serve whatever is cached.
type TTLClass struct {
	Name          string
	TTL           time.Duration
	RefreshOnRead bool
}

// SyncService keeps externally-sourced market data fresh with a cache-aside
// pattern: fresh hits never touch upstream, misses and stale entries refresh
// through the injected fetcher, and upstream failures degrade to the
// last-known-good value. Concurrent misses on one key share a single
// in-flight fetch.
type SyncService struct {
	cache        port.CacheStore
	catalog      port.AssetCatalog
	batchSize    int
	fetchTimeout time.Duration
	group        singleflight.Group

	// now is swappable for freshness tests.
	now func() time.Time
}

const DefaultBatchSize = 50

func NewSyncService(cache port.CacheStore, catalog port.AssetCatalog, batchSize int, fetchTimeout time.Duration) *SyncService {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	return &SyncService{
		cache:        cache,
		catalog:      catalog,
		batchSize:    batchSize,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}
}

// GetOrRefresh returns the value for key, refreshing from upstream when the
// cached entry is missing or stale. The read path never fails because
// upstream is down: a stale value is served as-is, and ErrUnavailable is
// returned only when nothing has ever been cached for the key.
func (s *SyncService) GetOrRefresh(ctx context.Context, key string, class TTLClass, fetcher port.UpstreamFetcher) (json.RawMessage, error) {
	value, refreshedAt, found, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found && (!class.RefreshOnRead || s.fresh(refreshedAt, class)) {
		return value, nil
	}
	if !found && !class.RefreshOnRead {
		return nil, ErrUnavailable
	}

	refreshed, refreshErr := s.refresh(ctx, key, fetcher)
	if refreshErr == nil {
		return refreshed, nil
	}

	if found {
		log.Warn().
			Err(refreshErr).
			Str("key", key).
			Time("last_refreshed_at", refreshedAt).
			Msg("upstream refresh failed, serving stale value")
		return value, nil
	}
	log.Warn().Err(refreshErr).Str("key", key).Msg("upstream fetch failed, no cached value")
	return nil, ErrUnavailable
}

// Refresh forces an upstream fetch regardless of freshness. Used by the
// scheduled refresher for resources that are never refreshed on read.
func (s *SyncService) Refresh(ctx context.Context, key string, fetcher port.UpstreamFetcher) error {
	_, err := s.refresh(ctx, key, fetcher)
	return err
}

func (s *SyncService) fresh(refreshedAt time.Time, class TTLClass) bool {
	return s.now().Sub(refreshedAt) < class.TTL
}

// refresh fetches, projects and caches one resource. Callers racing on the
// same key share a single upstream call through the singleflight group;
// upserts are idempotent so a shared failure is safe to retry from the top.
func (s *SyncService) refresh(ctx context.Context, key string, fetcher port.UpstreamFetcher) (json.RawMessage, error) {
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()

		result, err := fetcher.Fetch(fetchCtx, key)
		if err != nil {
			return nil, err
		}
		if result.Empty() {
			return nil, ErrUnavailable
		}

		if len(result.Assets) > 0 {
			if err := s.projectAssets(ctx, result.Assets); err != nil {
				return nil, err
			}
		}

		// The cache entry (value + timestamp) commits last, after every
		// projection batch is durable.
		if err := s.cache.Upsert(ctx, key, result.Value, s.now().UTC()); err != nil {
			return nil, err
		}
		return result.Value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// projectAssets upserts a list payload into the relational projection in
// fixed-size batches, each its own transaction. A failure partway leaves the
// committed batches durable; retries are idempotent.
func (s *SyncService) projectAssets(ctx context.Context, assets []model.Asset) error {
	for start := 0; start < len(assets); start += s.batchSize {
		end := start + s.batchSize
		if end > len(assets) {
			end = len(assets)
		}
		if err := s.catalog.UpsertBatch(ctx, assets[start:end]); err != nil {
			return err
		}
	}
	return nil
}
