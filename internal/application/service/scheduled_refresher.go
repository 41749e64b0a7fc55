package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
)

// RefreshTarget binds one cache key to the fetcher that populates it.
type RefreshTarget struct {
	Key     string
	Fetcher port.UpstreamFetcher
}

// ScheduledRefresher periodically force-refreshes a fixed set of cache keys,
// typically the refresh-only-on-demand resources (exchange rates and other
// slow metadata) that the read path never fetches itself.
type ScheduledRefresher struct {
	sync     *SyncService
	targets  []RefreshTarget
	interval time.Duration
}

func NewScheduledRefresher(sync *SyncService, targets []RefreshTarget, interval time.Duration) *ScheduledRefresher {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ScheduledRefresher{
		sync:     sync,
		targets:  targets,
		interval: interval,
	}
}

// Start runs an immediate refresh pass, then a background loop on the
// configured interval until ctx is done.
func (r *ScheduledRefresher) Start(ctx context.Context) {
	r.refreshAll(ctx)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.refreshAll(ctx)
			}
		}
	}()
}

// refreshAll refreshes every target; one failing key never blocks the rest.
func (r *ScheduledRefresher) refreshAll(ctx context.Context) {
	for _, target := range r.targets {
		if err := r.sync.Refresh(ctx, target.Key, target.Fetcher); err != nil {
			log.Warn().Err(err).Str("key", target.Key).Msg("scheduled refresh failed")
			continue
		}
		log.Debug().Str("key", target.Key).Msg("scheduled refresh done")
	}
}
