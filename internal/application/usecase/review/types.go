package review

import (
	"context"

	"folio/internal/domain/model"
)

// PositionSource lists the current ledger positions.
type PositionSource interface {
	ListPositions(ctx context.Context) ([]model.Position, error)
}

// QuoteFunc returns current prices keyed by asset symbol. Backed by the
// cached coins list; a degraded cache yields stale quotes, never an empty
// portfolio.
type QuoteFunc func(ctx context.Context) (map[string]float64, error)
