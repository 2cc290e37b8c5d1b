package indicator

import (
	"gonum.org/v1/gonum/stat"

	"aurelius-engine/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window.
// Uses preallocated buffers for a zero-allocation hot path. The mean is
// recomputed from the window on every update, so it does not drift the way
// a running sum does.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	dev     []float64 // scratch for windowMean
	idx     int       // current write position
	count   int       // total values received
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
// The period must be positive; batch callers validate it first.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
		dev:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(price float64) {
	s.buf[s.idx] = price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = windowMean(s.buf, s.dev)
	}
}

// windowMean is the mean of w, taken over deviations from w[0] so a flat
// window returns its price exactly. dev must be as long as w.
func windowMean(w, dev []float64) float64 {
	ref := w[0]
	for i, v := range w {
		dev[i] = v - ref
	}
	return ref + stat.Mean(dev, nil)
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Window returns the trailing period prices, oldest first. Nil until ready.
func (s *SMA) Window() []float64 {
	if !s.Ready() {
		return nil
	}
	out := make([]float64, s.period)
	for i := 0; i < s.period; i++ {
		out[i] = s.buf[(s.idx+i)%s.period]
	}
	return out
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// SMASeries computes SMA(period) over prices. Positions 0..period-2 are
// insufficient; a series shorter than period is insufficient throughout.
func SMASeries(prices []float64, period int) (model.Series, error) {
	if err := checkPeriod("SMA", period); err != nil {
		return nil, err
	}
	return run(NewSMA(period), prices), nil
}
