// Package indicator provides technical indicator calculations over price series.
//
// Each indicator has a streaming form implementing Indicator (one price at a
// time, O(1) per update) and a batch form that returns a model.Series aligned
// 1:1 with its input, marking the warm-up region as insufficient data.
package indicator

import (
	"fmt"

	"aurelius-engine/internal/model"
)

// Indicator is the interface for all streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

func checkPeriod(name string, period int) error {
	if period <= 0 {
		return fmt.Errorf("indicator: %s period %d: %w", name, period, model.ErrInvalidParameter)
	}
	return nil
}

// run feeds prices through ind and records a point wherever it is ready.
func run(ind Indicator, prices []float64) model.Series {
	out := model.NewSeries(len(prices))
	for i, p := range prices {
		ind.Update(p)
		if ind.Ready() {
			out[i] = model.Point{Value: ind.Value(), Valid: true}
		}
	}
	return out
}
