package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// Client is the CoinGecko-style market-data REST client. One Client serves
// every resource class; the per-class UpstreamFetcher values hand the sync
// layer a typed, validated payload so nothing downstream ever sees the loose
// upstream JSON.
type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// get performs one GET and returns the raw body. No retries: the sync layer
// owns the fallback policy.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market api http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// marketRow is the loose upstream shape of one coins-list record. Prices and
// caps arrive as nullable numbers; coercion to model.Asset happens here, at
// the boundary.
type marketRow struct {
	ID        string   `json:"id"`
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	Price     *float64 `json:"current_price"`
	MarketCap *float64 `json:"market_cap"`
}

func (r marketRow) toAsset() (model.Asset, bool) {
	if strings.TrimSpace(r.ID) == "" {
		return model.Asset{}, false
	}
	a := model.Asset{
		ID:     strings.TrimSpace(r.ID),
		Symbol: strings.ToUpper(strings.TrimSpace(r.Symbol)),
		Name:   strings.TrimSpace(r.Name),
	}
	if r.Price != nil {
		a.Price = *r.Price
	}
	if r.MarketCap != nil {
		a.MarketCap = *r.MarketCap
	}
	return a, true
}

// CoinsListFetcher fetches the full asset list. List-shaped: the result
// carries both the cached payload and the rows for the relational projection.
func (c *Client) CoinsListFetcher(currency string) port.UpstreamFetcher {
	if currency == "" {
		currency = "usd"
	}
	return port.FetchFunc(func(ctx context.Context, key string) (port.FetchResult, error) {
		params := url.Values{}
		params.Set("vs_currency", currency)
		params.Set("per_page", "250")

		body, err := c.get(ctx, "/coins/markets", params)
		if err != nil {
			return port.FetchResult{}, err
		}

		var rows []marketRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return port.FetchResult{}, fmt.Errorf("decode coins list: %w", err)
		}

		assets := make([]model.Asset, 0, len(rows))
		for _, row := range rows {
			if a, ok := row.toAsset(); ok {
				assets = append(assets, a)
			}
		}
		if len(assets) == 0 {
			return port.FetchResult{}, nil
		}

		value, err := json.Marshal(assets)
		if err != nil {
			return port.FetchResult{}, err
		}
		return port.FetchResult{Value: value, Assets: assets}, nil
	})
}

// chartResponse is the loose market_chart shape: [[ts_ms, price], ...].
type chartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// MarketChartFetcher fetches price history for keys shaped
// "market-chart:{assetID}:{days}".
func (c *Client) MarketChartFetcher(currency string) port.UpstreamFetcher {
	if currency == "" {
		currency = "usd"
	}
	return port.FetchFunc(func(ctx context.Context, key string) (port.FetchResult, error) {
		assetID, days, err := parseChartKey(key)
		if err != nil {
			return port.FetchResult{}, err
		}

		params := url.Values{}
		params.Set("vs_currency", currency)
		params.Set("days", days)

		body, err := c.get(ctx, "/coins/"+url.PathEscape(assetID)+"/market_chart", params)
		if err != nil {
			return port.FetchResult{}, err
		}

		var chart chartResponse
		if err := json.Unmarshal(body, &chart); err != nil {
			return port.FetchResult{}, fmt.Errorf("decode market chart: %w", err)
		}
		if len(chart.Prices) == 0 {
			return port.FetchResult{}, nil
		}

		points := make([]model.PricePoint, 0, len(chart.Prices))
		for _, p := range chart.Prices {
			points = append(points, model.PricePoint{Timestamp: int64(p[0]), Price: p[1]})
		}
		value, err := json.Marshal(points)
		if err != nil {
			return port.FetchResult{}, err
		}
		return port.FetchResult{Value: value}, nil
	})
}

// ExchangeRateFetcher fetches one currency pair for keys shaped
// "rate:{from}:{to}".
func (c *Client) ExchangeRateFetcher() port.UpstreamFetcher {
	return port.FetchFunc(func(ctx context.Context, key string) (port.FetchResult, error) {
		from, to, err := parseRateKey(key)
		if err != nil {
			return port.FetchResult{}, err
		}

		body, err := c.get(ctx, "/exchange_rates", nil)
		if err != nil {
			return port.FetchResult{}, err
		}

		var decoded struct {
			Rates map[string]struct {
				Value *float64 `json:"value"`
			} `json:"rates"`
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return port.FetchResult{}, fmt.Errorf("decode exchange rates: %w", err)
		}

		fromRate, okFrom := decoded.Rates[strings.ToLower(from)]
		toRate, okTo := decoded.Rates[strings.ToLower(to)]
		if !okFrom || !okTo || fromRate.Value == nil || toRate.Value == nil || *fromRate.Value == 0 {
			return port.FetchResult{}, nil
		}

		rate := model.ExchangeRate{
			From: strings.ToUpper(from),
			To:   strings.ToUpper(to),
			Rate: *toRate.Value / *fromRate.Value,
		}
		value, err := json.Marshal(rate)
		if err != nil {
			return port.FetchResult{}, err
		}
		return port.FetchResult{Value: value}, nil
	})
}

func parseChartKey(key string) (assetID, days string, err error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "market-chart" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("bad market-chart key %q", key)
	}
	return parts[1], parts[2], nil
}

func parseRateKey(key string) (from, to string, err error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "rate" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("bad rate key %q", key)
	}
	return parts[1], parts[2], nil
}
