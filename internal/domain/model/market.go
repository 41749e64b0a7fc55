package model

import (
	"encoding/json"
	"time"
)

// CacheEntry is one externally-sourced value with its refresh timestamp.
// Freshness is a property of the reader (TTL class), not of the entry.
type CacheEntry struct {
	Key             string          `json:"key"`
	Value           json.RawMessage `json:"value"`
	LastRefreshedAt time.Time       `json:"last_refreshed_at"`
}

// Asset is the strongly-typed relational projection of one record from a
// list-shaped upstream resource. Loose upstream JSON is coerced into this
// shape at the fetcher boundary; nothing downstream sees untyped data.
type Asset struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	MarketCap float64   `json:"market_cap"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PricePoint is one sample of a market chart payload.
type PricePoint struct {
	Timestamp int64   `json:"ts_ms"`
	Price     float64 `json:"price"`
}

// ExchangeRate is the simple scalar cache entry type used for currency
// conversion. Refreshed by the scheduled job, never on read.
type ExchangeRate struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
}
