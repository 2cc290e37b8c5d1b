package model

import (
	"encoding/json"
	"math"
	"time"
)

// Point is one element of an indicator series. Valid is false inside the
// warm-up region, where there is insufficient data for a value.
type Point struct {
	Value float64
	Valid bool
}

// MarshalJSON renders insufficient points as null.
func (p Point) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON accepts a number or null.
func (p *Point) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Point{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Point{Value: v, Valid: true}
	return nil
}

// Series is aligned 1:1 with its source price series.
type Series []Point

// NewSeries returns a series of n insufficient points.
func NewSeries(n int) Series {
	return make(Series, n)
}

// At returns the value at i and whether it is valid. Out of range is invalid.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) {
		return 0, false
	}
	return s[i].Value, s[i].Valid
}

// Last returns the newest point.
func (s Series) Last() (float64, bool) {
	return s.At(len(s) - 1)
}

// Values flattens the series with NaN in the warm-up region.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		if p.Valid {
			out[i] = p.Value
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// ValidCount returns how many points carry a value.
func (s Series) ValidCount() int {
	n := 0
	for _, p := range s {
		if p.Valid {
			n++
		}
	}
	return n
}

// IndicatorResult is a named series computed for one symbol and timeframe.
type IndicatorResult struct {
	Name   string    `json:"name"` // e.g. "SMA_20", "RSI_14", "MACD_HIST"
	Symbol string    `json:"symbol"`
	TF     Timeframe `json:"tf"`
	Series Series    `json:"series"`
	TS     time.Time `json:"ts"`
}

// Latest returns the last value of the series.
func (r *IndicatorResult) Latest() (float64, bool) {
	return r.Series.Last()
}

// JSON returns the JSON-encoded result (errors ignored for hot-path usage).
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
