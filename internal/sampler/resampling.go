package sampler

import (
	"context"
	"fmt"

	"aurelius-engine/internal/model"
)

// HistorySource returns up to limit stored prices for symbol, oldest first.
type HistorySource interface {
	History(ctx context.Context, symbol string, limit int) ([]float64, error)
}

// Resampling fits stored history to the canonical length of a timeframe.
//
// Longer history is downsampled by bucket close (the last price of each
// bucket); shorter history is upsampled by linear interpolation. The last
// element is always replaced by the stock's current price.
type Resampling struct {
	Source HistorySource

	// Stride is how many stored prices make up one output sample before
	// fitting. Zero means 1.
	Stride int

	// MinPoints is the least stored history worth resampling. Zero means
	// defaultMinPoints.
	MinPoints int

	// Fallback is used when neither Source nor stock.History has MinPoints
	// prices. Nil means such requests fail with model.ErrNotFound.
	Fallback Sampler
}

const defaultMinPoints = 2

// Sample implements Sampler.
func (r Resampling) Sample(ctx context.Context, stock model.Stock, tf model.Timeframe) ([]float64, error) {
	n, err := Count(tf)
	if err != nil {
		return nil, err
	}
	if err := stock.Validate(); err != nil {
		return nil, fmt.Errorf("sampler: resample: %w", err)
	}
	stride := r.Stride
	if stride <= 0 {
		stride = 1
	}
	minPoints := r.MinPoints
	if minPoints <= 0 {
		minPoints = defaultMinPoints
	}

	var hist []float64
	if r.Source != nil {
		hist, err = r.Source.History(ctx, stock.Key(), n*stride)
		if err != nil {
			return nil, fmt.Errorf("sampler: resample %s: %w", stock.Key(), err)
		}
	}
	if len(hist) < minPoints {
		hist = tail(stock.History, n*stride)
	}
	if len(hist) < minPoints {
		if r.Fallback != nil {
			return r.Fallback.Sample(ctx, stock, tf)
		}
		return nil, fmt.Errorf("sampler: resample %s: %d stored prices, need %d: %w", stock.Key(), len(hist), minPoints, model.ErrNotFound)
	}

	out := Fit(hist, n)
	out[n-1] = stock.Price
	return out, nil
}

func tail(xs []float64, n int) []float64 {
	if len(xs) > n {
		return xs[len(xs)-n:]
	}
	return xs
}

// Fit resizes src to exactly n points. src must be non-empty and n > 0.
// The last point of the output is always the last point of src.
func Fit(src []float64, n int) []float64 {
	out := make([]float64, n)
	m := len(src)
	switch {
	case m == n:
		copy(out, src)
	case m > n:
		// Bucket i covers src[i*m/n : (i+1)*m/n]; keep its close.
		for i := 0; i < n; i++ {
			out[i] = src[(i+1)*m/n-1]
		}
	case m == 1:
		for i := range out {
			out[i] = src[0]
		}
	default:
		scale := float64(m-1) / float64(n-1)
		for i := 0; i < n; i++ {
			x := float64(i) * scale
			lo := int(x)
			if lo >= m-1 {
				out[i] = src[m-1]
				continue
			}
			f := x - float64(lo)
			out[i] = src[lo] + f*(src[lo+1]-src[lo])
		}
	}
	return out
}
