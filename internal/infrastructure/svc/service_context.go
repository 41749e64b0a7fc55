package svc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
	"folio/internal/application/service"
	"folio/internal/application/usecase/review"
	"folio/internal/domain/model"
	"folio/internal/infrastructure/config"
	compositecache "folio/internal/infrastructure/storage/composite"
	postgresrepo "folio/internal/infrastructure/storage/postgres"
	redisrepo "folio/internal/infrastructure/storage/redis"
	sqliterepo "folio/internal/infrastructure/storage/sqlite"
	"folio/internal/infrastructure/upstream/coingecko"
	"folio/internal/interfaces/console"
)

// Resource key and TTL-class wiring for the sync layer. Each cached resource
// has a stable key identity: the coins list, per-asset charts and the
// scheduled exchange rates.
const CoinsListKey = "coins-list"

// ServiceContext owns all dependency wiring. It is the only place stores and
// clients are constructed; everything downstream receives explicit handles,
// never ambient globals.
type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	ledgerRepo  *sqliterepo.LedgerRepo
	redisClient *redisclient.Client
	cacheStore  port.CacheStore
	catalog     port.AssetCatalog
	market      *coingecko.Client

	Positions *service.PositionService
	Sync      *service.SyncService
	Refresher *service.ScheduledRefresher
	Sink      port.Sink

	ListClass  service.TTLClass
	ChartClass service.TTLClass
	RateClass  service.TTLClass

	closerChain []func() error
}

// New builds the full dependency graph in order: storage, upstream client,
// services. A failure mid-build closes whatever was already opened.
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initStorage(); err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}
	sc.initServices()
	return sc, nil
}

func (sc *ServiceContext) initStorage() error {
	ledger, err := sqliterepo.New(sc.Config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite open failed: %w", err)
	}
	sc.ledgerRepo = ledger
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return ledger.Close()
	})
	log.Info().Str("path", sc.Config.SQLite.Path).Msg("sqlite initialized")

	// Cache: redis in front when enabled, sqlite mirror always.
	sqliteCache := sqliterepo.NewCacheRepo(ledger.GetDB())
	if sc.Config.Redis.Enabled {
		rdb := redisclient.NewClient(&redisclient.Options{
			Addr:     sc.Config.Redis.Addr,
			Password: sc.Config.Redis.Password,
			DB:       sc.Config.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		sc.redisClient = rdb
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing redis connection")
			return rdb.Close()
		})
		sc.cacheStore = compositecache.New(redisrepo.New(rdb, sc.Config.Redis.Prefix), sqliteCache)
		log.Info().Str("addr", sc.Config.Redis.Addr).Int("db", sc.Config.Redis.DB).Msg("redis initialized")
	} else {
		sc.cacheStore = sqliteCache
	}

	// Asset catalog projection: postgres when configured, sqlite otherwise.
	if sc.Config.Postgres.Enabled {
		catalog, err := postgresrepo.New(sc.Config.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres open failed: %w", err)
		}
		sc.catalog = catalog
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return catalog.Close()
		})
		log.Info().Msg("postgres catalog initialized")
	} else {
		sc.catalog = sqliterepo.NewCatalogRepo(ledger.GetDB())
	}

	return nil
}

func (sc *ServiceContext) initServices() {
	fetchTimeout := time.Duration(sc.Config.Upstream.FetchTimeoutSec) * time.Second
	sc.market = coingecko.New(sc.Config.Upstream.BaseURL, fetchTimeout)

	sc.ListClass = service.TTLClass{
		Name:          "list",
		TTL:           time.Duration(sc.Config.Cache.ListTTLMin) * time.Minute,
		RefreshOnRead: true,
	}
	sc.ChartClass = service.TTLClass{
		Name:          "chart",
		TTL:           time.Duration(sc.Config.Cache.ChartTTLMin) * time.Minute,
		RefreshOnRead: true,
	}
	sc.RateClass = service.TTLClass{
		Name:          "exchange-rate",
		RefreshOnRead: false,
	}

	sc.Sync = service.NewSyncService(sc.cacheStore, sc.catalog, sc.Config.Cache.BatchSize, fetchTimeout)
	sc.Positions = service.NewPositionService(sc.ledgerRepo)

	targets := make([]service.RefreshTarget, 0, len(sc.Config.Cache.ScheduledRateKeys))
	for _, key := range sc.Config.Cache.ScheduledRateKeys {
		targets = append(targets, service.RefreshTarget{
			Key:     key,
			Fetcher: sc.market.ExchangeRateFetcher(),
		})
	}
	sc.Refresher = service.NewScheduledRefresher(sc.Sync, targets,
		time.Duration(sc.Config.Cache.RefreshEveryMin)*time.Minute)

	log.Info().
		Int("batch_size", sc.Config.Cache.BatchSize).
		Int("scheduled_keys", len(targets)).
		Msg("services initialized")
}

// CoinsListFetcher returns the fetcher bound to the configured currency.
func (sc *ServiceContext) CoinsListFetcher() port.UpstreamFetcher {
	return sc.market.CoinsListFetcher(sc.Config.Upstream.Currency)
}

// MarketChartFetcher returns the fetcher for market-chart:{asset}:{days} keys.
func (sc *ServiceContext) MarketChartFetcher() port.UpstreamFetcher {
	return sc.market.MarketChartFetcher(sc.Config.Upstream.Currency)
}

// Quotes adapts the cached coins list into a symbol -> price map for the
// review usecase.
func (sc *ServiceContext) Quotes() review.QuoteFunc {
	fetcher := sc.CoinsListFetcher()
	return func(ctx context.Context) (map[string]float64, error) {
		raw, err := sc.Sync.GetOrRefresh(ctx, CoinsListKey, sc.ListClass, fetcher)
		if err != nil {
			return nil, err
		}
		var assets []model.Asset
		if err := json.Unmarshal(raw, &assets); err != nil {
			return nil, err
		}
		quotes := make(map[string]float64, len(assets))
		for _, a := range assets {
			quotes[a.Symbol] = a.Price
		}
		return quotes, nil
	}
}

// Close releases resources in reverse initialization order.
func (sc *ServiceContext) Close() error {
	var firstErr error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
