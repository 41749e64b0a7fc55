package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

type mockCacheStore struct {
	values    map[string]json.RawMessage
	refreshed map[string]time.Time
	upserts   int
}

func newMockCacheStore() *mockCacheStore {
	return &mockCacheStore{
		values:    make(map[string]json.RawMessage),
		refreshed: make(map[string]time.Time),
	}
}

func (m *mockCacheStore) Get(ctx context.Context, key string) (json.RawMessage, time.Time, bool, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	return v, m.refreshed[key], true, nil
}

func (m *mockCacheStore) Upsert(ctx context.Context, key string, value json.RawMessage, refreshedAt time.Time) error {
	m.values[key] = value
	m.refreshed[key] = refreshedAt
	m.upserts++
	return nil
}

func (m *mockCacheStore) Close() error { return nil }

type mockCatalog struct {
	batches    [][]model.Asset
	failAfter  int // fail on batch N (1-based); 0 = never
	batchCalls int
}

func (m *mockCatalog) UpsertBatch(ctx context.Context, assets []model.Asset) error {
	m.batchCalls++
	if m.failAfter > 0 && m.batchCalls >= m.failAfter {
		return errors.New("catalog write failed")
	}
	batch := make([]model.Asset, len(assets))
	copy(batch, assets)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *mockCatalog) Get(ctx context.Context, id string) (*model.Asset, error) { return nil, nil }
func (m *mockCatalog) List(ctx context.Context) ([]model.Asset, error)          { return nil, nil }
func (m *mockCatalog) Close() error                                             { return nil }

type countingFetcher struct {
	calls  int
	result port.FetchResult
	err    error
}

func (f *countingFetcher) Fetch(ctx context.Context, key string) (port.FetchResult, error) {
	f.calls++
	return f.result, f.err
}

var listClass = TTLClass{Name: "list", TTL: 10 * time.Minute, RefreshOnRead: true}

func nowAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func assetList(n int) []model.Asset {
	out := make([]model.Asset, n)
	for i := range out {
		out[i] = model.Asset{ID: fmt.Sprintf("asset-%03d", i), Symbol: "A", Price: float64(i)}
	}
	return out
}

func TestGetOrRefreshFreshHitSkipsUpstream(t *testing.T) {
	cache := newMockCacheStore()
	now := time.Now()
	cache.values["coins-list"] = json.RawMessage(`["cached"]`)
	cache.refreshed["coins-list"] = now.Add(-1 * time.Minute)

	fetcher := &countingFetcher{}
	svc := NewSyncService(cache, &mockCatalog{}, 50, time.Second)
	svc.now = nowAt(now)

	value, err := svc.GetOrRefresh(context.Background(), "coins-list", listClass, fetcher)
	if err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}
	if string(value) != `["cached"]` {
		t.Errorf("expected cached value, got %s", value)
	}
	if fetcher.calls != 0 {
		t.Errorf("fresh hit must not call upstream, got %d calls", fetcher.calls)
	}
}

func TestGetOrRefreshStaleListBatches(t *testing.T) {
	cache := newMockCacheStore()
	now := time.Now()
	cache.values["coins-list"] = json.RawMessage(`["old"]`)
	cache.refreshed["coins-list"] = now.Add(-30 * time.Minute)

	fetcher := &countingFetcher{result: port.FetchResult{
		Value:  json.RawMessage(`["new"]`),
		Assets: assetList(120),
	}}
	catalog := &mockCatalog{}
	svc := NewSyncService(cache, catalog, 50, time.Second)
	svc.now = nowAt(now)

	value, err := svc.GetOrRefresh(context.Background(), "coins-list", listClass, fetcher)
	if err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}
	if string(value) != `["new"]` {
		t.Errorf("expected refreshed value, got %s", value)
	}
	if fetcher.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", fetcher.calls)
	}

	// 120 assets at batch size 50: 50 + 50 + 20.
	if len(catalog.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(catalog.batches))
	}
	for i, want := range []int{50, 50, 20} {
		if len(catalog.batches[i]) != want {
			t.Errorf("batch %d: expected %d assets, got %d", i, want, len(catalog.batches[i]))
		}
	}

	if !cache.refreshed["coins-list"].Equal(now.UTC()) {
		t.Errorf("expected refresh timestamp update after batches, got %v", cache.refreshed["coins-list"])
	}
}

func TestGetOrRefreshFailedFetchServesStale(t *testing.T) {
	cache := newMockCacheStore()
	now := time.Now()
	staleAt := now.Add(-30 * time.Minute)
	cache.values["coins-list"] = json.RawMessage(`["old"]`)
	cache.refreshed["coins-list"] = staleAt

	fetcher := &countingFetcher{err: errors.New("upstream down")}
	svc := NewSyncService(cache, &mockCatalog{}, 50, time.Second)
	svc.now = nowAt(now)

	value, err := svc.GetOrRefresh(context.Background(), "coins-list", listClass, fetcher)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if string(value) != `["old"]` {
		t.Errorf("expected previous value, got %s", value)
	}
	if !cache.refreshed["coins-list"].Equal(staleAt) {
		t.Errorf("timestamp must stay unchanged on failure, got %v", cache.refreshed["coins-list"])
	}
}

func TestGetOrRefreshEmptyPayloadServesStale(t *testing.T) {
	cache := newMockCacheStore()
	now := time.Now()
	cache.values["coins-list"] = json.RawMessage(`["old"]`)
	cache.refreshed["coins-list"] = now.Add(-30 * time.Minute)

	fetcher := &countingFetcher{result: port.FetchResult{}}
	svc := NewSyncService(cache, &mockCatalog{}, 50, time.Second)
	svc.now = nowAt(now)

	value, err := svc.GetOrRefresh(context.Background(), "coins-list", listClass, fetcher)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if string(value) != `["old"]` {
		t.Errorf("expected previous value, got %s", value)
	}
}

func TestGetOrRefreshNeverCachedUnavailable(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("upstream down")}
	svc := NewSyncService(newMockCacheStore(), &mockCatalog{}, 50, time.Second)

	_, err := svc.GetOrRefresh(context.Background(), "coins-list", listClass, fetcher)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestGetOrRefreshScalarResource(t *testing.T) {
	cache := newMockCacheStore()
	fetcher := &countingFetcher{result: port.FetchResult{
		Value: json.RawMessage(`{"price":42000}`),
	}}
	catalog := &mockCatalog{}
	svc := NewSyncService(cache, catalog, 50, time.Second)

	value, err := svc.GetOrRefresh(context.Background(), "market-chart:bitcoin:7d", listClass, fetcher)
	if err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}
	if string(value) != `{"price":42000}` {
		t.Errorf("unexpected value: %s", value)
	}
	if catalog.batchCalls != 0 {
		t.Errorf("scalar resource must not touch the catalog, got %d batches", catalog.batchCalls)
	}
	if cache.upserts != 1 {
		t.Errorf("expected 1 cache upsert, got %d", cache.upserts)
	}
}

func TestGetOrRefreshOnDemandClassNeverFetches(t *testing.T) {
	onDemand := TTLClass{Name: "exchange-rate", TTL: time.Hour, RefreshOnRead: false}

	cache := newMockCacheStore()
	cache.values["rate:USD:EUR"] = json.RawMessage(`{"rate":0.92}`)
	cache.refreshed["rate:USD:EUR"] = time.Now().Add(-48 * time.Hour)

	fetcher := &countingFetcher{result: port.FetchResult{Value: json.RawMessage(`{"rate":0.93}`)}}
	svc := NewSyncService(cache, &mockCatalog{}, 50, time.Second)

	value, err := svc.GetOrRefresh(context.Background(), "rate:USD:EUR", onDemand, fetcher)
	if err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}
	if string(value) != `{"rate":0.92}` {
		t.Errorf("expected cached value regardless of age, got %s", value)
	}
	if fetcher.calls != 0 {
		t.Errorf("on-demand class must never fetch on read, got %d calls", fetcher.calls)
	}
}

func TestRefreshForcesFetch(t *testing.T) {
	cache := newMockCacheStore()
	now := time.Now()
	cache.values["rate:USD:EUR"] = json.RawMessage(`{"rate":0.92}`)
	cache.refreshed["rate:USD:EUR"] = now.Add(-1 * time.Second)

	fetcher := &countingFetcher{result: port.FetchResult{Value: json.RawMessage(`{"rate":0.93}`)}}
	svc := NewSyncService(cache, &mockCatalog{}, 50, time.Second)
	svc.now = nowAt(now)

	if err := svc.Refresh(context.Background(), "rate:USD:EUR", fetcher); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("expected forced fetch, got %d calls", fetcher.calls)
	}
	if string(cache.values["rate:USD:EUR"]) != `{"rate":0.93}` {
		t.Errorf("expected updated value, got %s", cache.values["rate:USD:EUR"])
	}
}

func TestGetOrRefreshBatchFailureKeepsTimestamp(t *testing.T) {
	cache := newMockCacheStore()
	now := time.Now()
	staleAt := now.Add(-30 * time.Minute)
	cache.values["coins-list"] = json.RawMessage(`["old"]`)
	cache.refreshed["coins-list"] = staleAt

	fetcher := &countingFetcher{result: port.FetchResult{
		Value:  json.RawMessage(`["new"]`),
		Assets: assetList(120),
	}}
	catalog := &mockCatalog{failAfter: 2}
	svc := NewSyncService(cache, catalog, 50, time.Second)
	svc.now = nowAt(now)

	value, err := svc.GetOrRefresh(context.Background(), "coins-list", listClass, fetcher)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if string(value) != `["old"]` {
		t.Errorf("expected previous value, got %s", value)
	}
	// First batch committed, second failed: cache entry untouched so a retry
	// starts from the top.
	if len(catalog.batches) != 1 {
		t.Errorf("expected 1 committed batch, got %d", len(catalog.batches))
	}
	if !cache.refreshed["coins-list"].Equal(staleAt) {
		t.Errorf("timestamp must stay unchanged on partial failure")
	}
	if cache.upserts != 0 {
		t.Errorf("cache entry must not be written on partial failure, got %d upserts", cache.upserts)
	}
}

func TestScheduledRefresherRefreshesTargets(t *testing.T) {
	cache := newMockCacheStore()
	fetcher := &countingFetcher{result: port.FetchResult{Value: json.RawMessage(`{"rate":0.93}`)}}
	svc := NewSyncService(cache, &mockCatalog{}, 50, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := NewScheduledRefresher(svc, []RefreshTarget{
		{Key: "rate:USD:EUR", Fetcher: fetcher},
	}, time.Hour)
	refresher.Start(ctx)

	if fetcher.calls != 1 {
		t.Errorf("expected immediate first refresh, got %d calls", fetcher.calls)
	}
	if _, _, found, _ := cache.Get(ctx, "rate:USD:EUR"); !found {
		t.Errorf("expected cache entry after scheduled refresh")
	}
}
