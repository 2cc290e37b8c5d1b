package indicator

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"aurelius-engine/internal/model"
)

// DefaultBollingerMultiplier is the usual band width in standard deviations.
const DefaultBollingerMultiplier = 2.0

// BollingerResult holds the three aligned band series.
type BollingerResult struct {
	Upper  model.Series `json:"upper"`
	Middle model.Series `json:"middle"`
	Lower  model.Series `json:"lower"`
}

// Bollinger streams Bollinger Bands over a rolling window.
//
// Middle = SMA(period); half-width = multiplier × population standard
// deviation of the trailing period prices. A flat window gives zero width.
type Bollinger struct {
	sma        *SMA
	multiplier float64
	halfWidth  float64
}

// NewBollinger creates a Bollinger band indicator.
func NewBollinger(period int, multiplier float64) *Bollinger {
	return &Bollinger{sma: NewSMA(period), multiplier: multiplier}
}

func (b *Bollinger) Name() string { return "BBANDS" }

func (b *Bollinger) Update(price float64) {
	b.sma.Update(price)
	if b.sma.Ready() {
		b.halfWidth = b.multiplier * stat.PopStdDev(b.sma.Window(), nil)
	}
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.sma.Value() }
func (b *Bollinger) Ready() bool    { return b.sma.Ready() }

// Upper returns the current upper band.
func (b *Bollinger) Upper() float64 { return b.sma.Value() + b.halfWidth }

// Lower returns the current lower band.
func (b *Bollinger) Lower() float64 { return b.sma.Value() - b.halfWidth }

// BollingerSeries computes the bands. The warm-up region matches SMA's.
func BollingerSeries(prices []float64, period int, multiplier float64) (BollingerResult, error) {
	if err := checkPeriod("Bollinger", period); err != nil {
		return BollingerResult{}, err
	}
	if !(multiplier >= 0) {
		return BollingerResult{}, fmt.Errorf("indicator: Bollinger multiplier %v: %w", multiplier, model.ErrInvalidParameter)
	}

	n := len(prices)
	res := BollingerResult{
		Upper:  model.NewSeries(n),
		Middle: model.NewSeries(n),
		Lower:  model.NewSeries(n),
	}
	b := NewBollinger(period, multiplier)
	for i, p := range prices {
		b.Update(p)
		if !b.Ready() {
			continue
		}
		res.Upper[i] = model.Point{Value: b.Upper(), Valid: true}
		res.Middle[i] = model.Point{Value: b.Value(), Valid: true}
		res.Lower[i] = model.Point{Value: b.Lower(), Valid: true}
	}
	return res, nil
}
