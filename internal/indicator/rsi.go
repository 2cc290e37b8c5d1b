package indicator

import "aurelius-engine/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing method:
// the first average gain/loss is the simple mean of the first period changes,
// later averages are smoothed by SMMA. Update is O(1) per price.
//
// Boundary values: RSI is 100 when the average loss is 0 and the average gain
// is positive, and 0 when both averages are 0 (a flat series).
type RSI struct {
	period    int
	count     int
	prevClose float64
	gains     *SMMA
	losses    *SMMA
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  NewSMMA(period),
		losses: NewSMMA(period),
	}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First price — just record it, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.gains.Update(gain)
	r.losses.Update(loss)

	if r.gains.Ready() {
		r.current = rsiValue(r.gains.Value(), r.losses.Value())
	}
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 0
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.gains.Ready() }

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.current = 0
	r.gains.Reset()
	r.losses.Reset()
}

// RSISeries computes RSI(period). The first period positions are
// insufficient, since period price changes need period+1 prices.
func RSISeries(prices []float64, period int) (model.Series, error) {
	if err := checkPeriod("RSI", period); err != nil {
		return nil, err
	}
	return run(NewRSI(period), prices), nil
}
