// Package sampler maps a timeframe token to a price series of canonical
// length for charts and the indicator engine.
//
// Resampling is the production path: it reads stored history and fits it to
// the canonical length. Synthetic generates a reproducible stand-in series
// and is only meant for demo instruments with no stored history.
package sampler

import (
	"context"
	"fmt"

	"aurelius-engine/internal/model"
)

var counts = map[model.Timeframe]int{
	model.TF1D: 24,  // hourly
	model.TF1W: 7,   // daily
	model.TF1M: 30,  // daily
	model.TF3M: 90,  // daily
	model.TF1Y: 252, // trading days
	model.TF5Y: 60,  // monthly
}

// Count returns the canonical sample count for tf.
func Count(tf model.Timeframe) (int, error) {
	n, ok := counts[tf]
	if !ok {
		return 0, fmt.Errorf("sampler: %q: %w", tf, model.ErrUnknownTimeframe)
	}
	return n, nil
}

// Sampler produces Count(tf) prices for stock, oldest first, whose last
// element is the stock's current price.
type Sampler interface {
	Sample(ctx context.Context, stock model.Stock, tf model.Timeframe) ([]float64, error)
}
