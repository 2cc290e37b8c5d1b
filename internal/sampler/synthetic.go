package sampler

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"aurelius-engine/internal/model"
)

// Synthetic generates a placeholder series from a stock's price and percent
// change. The first element is price/(1+pc/100), the last is price, and the
// points between follow a seeded random walk around the straight line
// joining them, so the overall drift has the sign of pc.
//
// Output is a pure function of (Seed, symbol, tf, price, pc).
type Synthetic struct {
	Seed int64
	// Volatility is the per-step log-return stddev. Zero means 0.01.
	Volatility float64
}

// Sample implements Sampler.
func (s Synthetic) Sample(_ context.Context, stock model.Stock, tf model.Timeframe) ([]float64, error) {
	n, err := Count(tf)
	if err != nil {
		return nil, err
	}
	if err := stock.Validate(); err != nil {
		return nil, fmt.Errorf("sampler: synthetic: %w", err)
	}
	if !(stock.PercentChange > -100) {
		return nil, fmt.Errorf("sampler: synthetic: percent change %v: %w", stock.PercentChange, model.ErrInvalidParameter)
	}
	vol := s.Volatility
	if vol <= 0 {
		vol = 0.01
	}

	last := stock.Price
	first := stock.PreviousClose()
	if n == 1 {
		return []float64{last}, nil
	}

	seed := uint64(s.seedFor(stock.Key(), tf))
	step := distuv.Normal{Mu: 0, Sigma: vol, Src: rand.NewPCG(seed, seed)}

	// Log-space walk turned into a bridge (zero at both ends), then laid over
	// the geometric path from first to last. Stays strictly positive.
	walk := make([]float64, n)
	for i := 1; i < n; i++ {
		walk[i] = walk[i-1] + step.Rand()
	}
	end := walk[n-1]
	logFirst, logLast := math.Log(first), math.Log(last)
	out := make([]float64, n)
	for i := range out {
		f := float64(i) / float64(n-1)
		bridge := walk[i] - f*end
		out[i] = math.Exp(logFirst + f*(logLast-logFirst) + bridge)
	}
	out[0] = first
	out[n-1] = last
	return out, nil
}

func (s Synthetic) seedFor(key string, tf model.Timeframe) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(tf))
	return s.Seed ^ int64(h.Sum64())
}
