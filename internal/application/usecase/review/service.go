package review

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
)

// Service is the presentation boundary: the one place ledger aggregates and
// cached market prices combine. It renders a portfolio summary on a fixed
// interval and writes it to the sink.
type ServiceDeps struct {
	Positions     PositionSource
	Quotes        QuoteFunc
	ReviewEveryMin int
	Sink          port.Sink
}

type Service struct {
	deps ServiceDeps
	fmt  *Formatter
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		deps: deps,
		fmt:  NewFormatter(),
	}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Positions == nil || s.deps.Quotes == nil {
		return errors.New("review service misconfigured")
	}

	ticker := time.NewTicker(time.Duration(s.deps.ReviewEveryMin) * time.Minute)
	defer ticker.Stop()

	s.renderOnce(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return ctx.Err()
		case now := <-ticker.C:
			s.renderOnce(ctx, now)
		}
	}
}

func (s *Service) renderOnce(ctx context.Context, now time.Time) {
	positions, err := s.deps.Positions.ListPositions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list positions failed")
		return
	}

	quotes, err := s.deps.Quotes(ctx)
	if err != nil {
		// Degraded market data is not fatal; render what the ledger knows.
		log.Warn().Err(err).Msg("quotes unavailable, rendering without prices")
		quotes = nil
	}

	_ = s.deps.Sink.WriteSnapshot(now, s.fmt.Render(positions, quotes))
}
