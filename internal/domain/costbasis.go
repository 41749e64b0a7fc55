package domain

import (
	"sort"

	"folio/internal/domain/model"
)

// Recompute derives a position's aggregate from its full transaction set
// using the weighted average cost method. Pure and deterministic: the input
// slice is not mutated, and any permutation of the same set yields the same
// result.
//
// Ordering is timestamp ascending, ties broken by id ascending (creation
// order). Acquisitions pool quantity and cost; disposals remove quantity at
// the running average cost, so the sale price never touches cost basis. A
// disposal larger than current holdings clips to "sell everything held", so
// quantity never goes negative.
func Recompute(transactions []model.Transaction) model.Aggregate {
	ordered := make([]model.Transaction, len(transactions))
	copy(ordered, transactions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].ID < ordered[j].ID
	})

	var quantity, cost float64
	for _, tx := range ordered {
		switch {
		case tx.Quantity > 0:
			cost += tx.Quantity * tx.UnitPrice
			quantity += tx.Quantity

		case tx.Quantity < 0:
			disposal := -tx.Quantity
			if disposal > quantity {
				disposal = quantity
			}
			var avgCost float64
			if quantity > 0 {
				avgCost = cost / quantity
			}
			cost -= disposal * avgCost
			quantity -= disposal
		}
		// quantity == 0 rows are persisted drafts; they contribute nothing.
	}

	// Full liquidation must reset exactly, not leave float residue behind.
	if quantity <= 0 {
		quantity = 0
		cost = 0
	}
	if cost < 0 {
		cost = 0
	}

	avg := 0.0
	if quantity > 0 {
		avg = cost / quantity
	}
	return model.Aggregate{
		TotalQuantity: quantity,
		TotalCost:     cost,
		AveragePrice:  avg,
	}
}

// TotalsBySign sums acquisitions and disposals across a transaction set,
// ignoring order. Used by edit validation to check that the set as a whole
// never disposes of more than it acquires.
func TotalsBySign(transactions []model.Transaction) (acquired, disposed float64) {
	for _, tx := range transactions {
		if tx.Quantity > 0 {
			acquired += tx.Quantity
		} else {
			disposed += -tx.Quantity
		}
	}
	return acquired, disposed
}
