package review

import (
	"fmt"
	"strings"

	"folio/internal/domain/model"
)

type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

// Render builds one summary line per position: holdings and cost basis from
// the ledger, market value and unrealized P/L from the quote map. Positions
// without a quote show cost basis only.
func (f *Formatter) Render(positions []model.Position, quotes map[string]float64) string {
	if len(positions) == 0 {
		return "portfolio empty"
	}

	var b strings.Builder
	for i, pos := range positions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%-18s qty=%-12.4f avg=%-12.2f cost=%-12.2f",
			pos.Key.String(), pos.TotalQuantity, pos.AveragePrice, pos.TotalCost))

		price, ok := quotes[pos.Key.Asset]
		if !ok {
			b.WriteString(" price=?")
			continue
		}
		value := pos.TotalQuantity * price
		b.WriteString(fmt.Sprintf(" price=%-12.2f value=%-12.2f pnl=%+.2f",
			price, value, value-pos.TotalCost))

		if pos.DesiredSellPrice > 0 && price >= pos.DesiredSellPrice {
			b.WriteString(" [target hit]")
		}
	}
	return b.String()
}
