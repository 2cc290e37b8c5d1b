// Package marketdata holds the market data collaborator: the Provider
// contract the engine consumes, a demo in-memory Catalog, the explicit
// enrichment step and the Poller that feeds the pipeline.
package marketdata

import (
	"context"

	"aurelius-engine/internal/model"
)

// Provider fetches instruments from a market data source. Implementations
// own transport, retries and timeouts.
type Provider interface {
	FetchQuote(ctx context.Context, symbol string) (model.Stock, error)
	FetchHistory(ctx context.Context, symbol string, tf model.Timeframe) ([]float64, error)
	Search(ctx context.Context, query string) ([]model.Stock, error)
}
