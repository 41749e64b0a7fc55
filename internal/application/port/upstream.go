package port

import (
	"context"
	"encoding/json"

	"folio/internal/domain/model"
)

// FetchResult is the validated outcome of one upstream call. Value is the
// typed payload that goes into the cache; Assets is set only for list-shaped
// resources and feeds the relational projection.
type FetchResult struct {
	Value  json.RawMessage
	Assets []model.Asset
}

func (r FetchResult) Empty() bool {
	return len(r.Value) == 0 && len(r.Assets) == 0
}

// UpstreamFetcher fetches one resource from the external market-data API.
// Implementations validate and coerce the loose upstream JSON before
// returning; they do not retry, and they honor ctx for timeout/cancel.
type UpstreamFetcher interface {
	Fetch(ctx context.Context, key string) (FetchResult, error)
}

// FetchFunc adapts a plain function to UpstreamFetcher.
type FetchFunc func(ctx context.Context, key string) (FetchResult, error)

func (f FetchFunc) Fetch(ctx context.Context, key string) (FetchResult, error) {
	return f(ctx, key)
}
