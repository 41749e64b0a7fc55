package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCoinsListFetcherCoercesLooseJSON(t *testing.T) {
	// current_price/market_cap can be null, ids can be padded; rows without
	// an id are dropped.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":45000.5,"market_cap":880000000000},
			{"id":" ethereum ","symbol":"eth","name":"Ethereum","current_price":null,"market_cap":null},
			{"id":"","symbol":"???","name":"broken"}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	result, err := c.CoinsListFetcher("usd").Fetch(context.Background(), "coins-list")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(result.Assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(result.Assets))
	}
	if result.Assets[0].ID != "bitcoin" || result.Assets[0].Price != 45000.5 {
		t.Errorf("unexpected first asset: %+v", result.Assets[0])
	}
	if result.Assets[1].ID != "ethereum" || result.Assets[1].Symbol != "ETH" {
		t.Errorf("expected trimmed id and upper symbol, got %+v", result.Assets[1])
	}
	if result.Assets[1].Price != 0 {
		t.Errorf("null price must coerce to 0, got %v", result.Assets[1].Price)
	}
	if len(result.Value) == 0 {
		t.Error("expected typed payload for the cache")
	}
}

func TestCoinsListFetcherEmptyUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	result, err := c.CoinsListFetcher("usd").Fetch(context.Background(), "coins-list")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !result.Empty() {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestMarketChartFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/bitcoin/market_chart" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("days") != "7" {
			t.Errorf("unexpected days %s", r.URL.Query().Get("days"))
		}
		w.Write([]byte(`{"prices":[[1717200000000,43000.1],[1717286400000,44100.9]]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	result, err := c.MarketChartFetcher("usd").Fetch(context.Background(), "market-chart:bitcoin:7")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(result.Assets) != 0 {
		t.Errorf("chart is scalar, got %d assets", len(result.Assets))
	}
	want := `[{"ts_ms":1717200000000,"price":43000.1},{"ts_ms":1717286400000,"price":44100.9}]`
	if string(result.Value) != want {
		t.Errorf("unexpected payload: %s", result.Value)
	}
}

func TestMarketChartFetcherBadKey(t *testing.T) {
	c := New("http://unused", time.Second)
	_, err := c.MarketChartFetcher("usd").Fetch(context.Background(), "market-chart:bitcoin")
	if err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestExchangeRateFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{"usd":{"value":67000.0},"eur":{"value":61640.0}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	result, err := c.ExchangeRateFetcher().Fetch(context.Background(), "rate:USD:EUR")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	want := `{"from":"USD","to":"EUR","rate":0.92}`
	if string(result.Value) != want {
		t.Errorf("unexpected payload: %s", result.Value)
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.CoinsListFetcher("usd").Fetch(context.Background(), "coins-list")
	if err == nil {
		t.Error("expected error for non-200 status")
	}
}
