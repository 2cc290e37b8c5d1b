package indicator

import (
	"fmt"

	"aurelius-engine/internal/model"
)

// Standard MACD parameters.
const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACDResult holds the three aligned MACD series.
type MACDResult struct {
	Line      model.Series `json:"line"`
	Signal    model.Series `json:"signal"`
	Histogram model.Series `json:"histogram"`
}

// MACDSeries computes fast EMA − slow EMA (the MACD line), an EMA of the
// MACD line (the signal line) and their difference (the histogram).
//
// Every EMA uses the seed rule EMA[0] = P[0]. The MACD line is valid from
// index slow-1; signal and histogram are valid from index slow+signal-1.
func MACDSeries(prices []float64, fast, slow, signal int) (MACDResult, error) {
	for _, p := range []struct {
		name   string
		period int
	}{{"MACD fast", fast}, {"MACD slow", slow}, {"MACD signal", signal}} {
		if err := checkPeriod(p.name, p.period); err != nil {
			return MACDResult{}, err
		}
	}
	if fast >= slow {
		return MACDResult{}, fmt.Errorf("indicator: MACD fast %d must be below slow %d: %w", fast, slow, model.ErrInvalidParameter)
	}

	n := len(prices)
	res := MACDResult{
		Line:      model.NewSeries(n),
		Signal:    model.NewSeries(n),
		Histogram: model.NewSeries(n),
	}
	if n == 0 {
		return res, nil
	}

	fastEMA := emaRaw(prices, fast)
	slowEMA := emaRaw(prices, slow)
	line := make([]float64, n)
	for i := range line {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := emaRaw(line, signal)

	lineFrom := slow - 1
	histFrom := slow + signal - 1
	for i := 0; i < n; i++ {
		if i >= lineFrom {
			res.Line[i] = model.Point{Value: line[i], Valid: true}
		}
		if i >= histFrom {
			res.Signal[i] = model.Point{Value: sig[i], Valid: true}
			res.Histogram[i] = model.Point{Value: line[i] - sig[i], Valid: true}
		}
	}
	return res, nil
}

// DefaultMACD computes MACD(12, 26, 9).
func DefaultMACD(prices []float64) (MACDResult, error) {
	return MACDSeries(prices, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
}
