package model

import (
	"fmt"
	"strings"
	"time"
)

// PositionKey identifies one owner+asset position.
type PositionKey struct {
	Owner string `json:"owner"`
	Asset string `json:"asset"`
}

func NewPositionKey(owner, asset string) PositionKey {
	return PositionKey{
		Owner: strings.TrimSpace(owner),
		Asset: strings.ToUpper(strings.TrimSpace(asset)),
	}
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%s", k.Owner, k.Asset)
}

func (k PositionKey) IsZero() bool {
	return k.Owner == "" || k.Asset == ""
}

// Transaction is one signed ledger event. Quantity > 0 is an acquisition,
// quantity < 0 a disposal, quantity == 0 a persisted draft row.
type Transaction struct {
	ID          int64       `json:"id"`
	PositionKey PositionKey `json:"position_key"`
	Quantity    float64     `json:"quantity"`
	UnitPrice   float64     `json:"unit_price"`
	Timestamp   time.Time   `json:"timestamp"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Aggregate is the derived financial state of one position. It is always the
// output of the cost-basis engine over the position's full transaction set,
// never patched incrementally.
type Aggregate struct {
	TotalQuantity float64 `json:"total_quantity"`
	TotalCost     float64 `json:"total_cost"`
	AveragePrice  float64 `json:"average_price"`
}

// Position is the stored projection of an aggregate plus the one user-set
// field that is not derived from the ledger.
type Position struct {
	Key              PositionKey `json:"key"`
	TotalQuantity    float64     `json:"total_quantity"`
	TotalCost        float64     `json:"total_cost"`
	AveragePrice     float64     `json:"average_price"`
	DesiredSellPrice float64     `json:"desired_sell_price,omitempty"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (p *Position) Apply(agg Aggregate, now time.Time) {
	p.TotalQuantity = agg.TotalQuantity
	p.TotalCost = agg.TotalCost
	p.AveragePrice = agg.AveragePrice
	p.UpdatedAt = now
}
