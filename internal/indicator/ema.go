package indicator

import "aurelius-engine/internal/model"

// EMA calculates Exponential Moving Average.
// O(1) per update — no window storage needed.
//
// The recurrence is seeded with the first price: EMA[0] = P[0], then
// EMA[i] = α·P[i] + (1-α)·EMA[i-1] with α = 2/(period+1). Ready reports
// whether period prices have been seen.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(price float64) {
	e.count++
	if e.count == 1 {
		e.current = price
		return
	}
	// EMA formula: EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// emaRaw returns the EMA value at every index, warm-up included.
func emaRaw(prices []float64, period int) []float64 {
	e := NewEMA(period)
	out := make([]float64, len(prices))
	for i, p := range prices {
		e.Update(p)
		out[i] = e.Value()
	}
	return out
}

// EMASeries computes EMA(period). Values exist from index 0 by the seed
// rule, but positions before period-1 are marked insufficient.
func EMASeries(prices []float64, period int) (model.Series, error) {
	if err := checkPeriod("EMA", period); err != nil {
		return nil, err
	}
	return run(NewEMA(period), prices), nil
}
