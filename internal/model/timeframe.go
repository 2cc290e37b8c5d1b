package model

import (
	"fmt"
	"strings"
)

// Timeframe is a chart range token.
type Timeframe string

const (
	TF1D Timeframe = "1D"
	TF1W Timeframe = "1W"
	TF1M Timeframe = "1M"
	TF3M Timeframe = "3M"
	TF1Y Timeframe = "1Y"
	TF5Y Timeframe = "5Y"
)

// Timeframes lists every supported token in display order.
var Timeframes = []Timeframe{TF1D, TF1W, TF1M, TF3M, TF1Y, TF5Y}

// ParseTimeframe accepts a token case-insensitively.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Timeframes {
		if tf == known {
			return tf, nil
		}
	}
	return "", fmt.Errorf("timeframe %q: %w", s, ErrUnknownTimeframe)
}
