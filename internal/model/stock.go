package model

import (
	"fmt"
	"time"
)

// Stock is an immutable snapshot of a tradable instrument plus its price
// history (oldest → newest). ID is the stable key, typically the ticker.
type Stock struct {
	ID            string    `json:"id" msgpack:"id"`
	Symbol        string    `json:"symbol" msgpack:"symbol"`
	Name          string    `json:"name" msgpack:"name"`
	Price         float64   `json:"price" msgpack:"price"`
	PercentChange float64   `json:"percent_change" msgpack:"percent_change"`
	Volume        float64   `json:"volume" msgpack:"volume"`
	History       []float64 `json:"history,omitempty" msgpack:"history,omitempty"`
	AsOf          time.Time `json:"as_of" msgpack:"as_of"`

	// Stale is set when the provider failed to refresh this snapshot and the
	// engine is still serving the last known values.
	Stale bool `json:"stale" msgpack:"stale"`

	// Enrichment is attached by the market data collaborator. It never
	// changes the identity of the instrument.
	Enrichment *Enrichment `json:"enrichment,omitempty" msgpack:"enrichment,omitempty"`
}

// Key returns the identity used for watchlist membership and quote routing.
func (s *Stock) Key() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Symbol
}

// Validate checks price > 0 and a strictly positive history.
func (s *Stock) Validate() error {
	if s.Key() == "" {
		return fmt.Errorf("stock: empty identifier: %w", ErrInvalidParameter)
	}
	if !(s.Price > 0) {
		return fmt.Errorf("stock %s: price %v must be positive: %w", s.Key(), s.Price, ErrInvalidParameter)
	}
	for i, p := range s.History {
		if !(p > 0) {
			return fmt.Errorf("stock %s: history[%d]=%v must be positive: %w", s.Key(), i, p, ErrInvalidParameter)
		}
	}
	return nil
}

// PreviousClose derives the prior close from price and percent change.
func (s *Stock) PreviousClose() float64 {
	return s.Price / (1 + s.PercentChange/100)
}

// Quote projects the snapshot onto a single observation.
func (s *Stock) Quote() Quote {
	return Quote{
		Symbol:        s.Key(),
		Price:         s.Price,
		PercentChange: s.PercentChange,
		Volume:        s.Volume,
		TS:            s.AsOf,
	}
}

// WithQuote returns a copy of the snapshot updated from q. History is shared
// with the receiver, so callers must not mutate it.
func (s Stock) WithQuote(q Quote) Stock {
	s.Price = q.Price
	s.PercentChange = q.PercentChange
	s.Volume = q.Volume
	s.AsOf = q.TS
	s.Stale = false
	return s
}

// Quote is a single market observation for one instrument.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PercentChange float64   `json:"percent_change"`
	Volume        float64   `json:"volume"`
	TS            time.Time `json:"ts"`
}

// Enrichment holds read-only facts attached to a snapshot.
type Enrichment struct {
	MarketCap      float64        `json:"market_cap" msgpack:"market_cap"`
	PERatio        float64        `json:"pe_ratio" msgpack:"pe_ratio"`
	YearHigh       float64        `json:"year_high" msgpack:"year_high"`
	YearLow        float64        `json:"year_low" msgpack:"year_low"`
	AvgVolume      float64        `json:"avg_volume" msgpack:"avg_volume"`
	DividendYield  float64        `json:"dividend_yield" msgpack:"dividend_yield"`
	TargetPrice    float64        `json:"target_price" msgpack:"target_price"`
	Description    string         `json:"description" msgpack:"description"`
	AnalystRatings AnalystRatings `json:"analyst_ratings" msgpack:"analyst_ratings"`
}

// AnalystRatings are buy/hold/sell shares normalised to sum to 100.
type AnalystRatings struct {
	Buy  float64 `json:"buy" msgpack:"buy"`
	Hold float64 `json:"hold" msgpack:"hold"`
	Sell float64 `json:"sell" msgpack:"sell"`
}

// NewAnalystRatings divides each input by the input total and multiplies by
// 100. Negative inputs and an all-zero total are rejected.
func NewAnalystRatings(buy, hold, sell float64) (AnalystRatings, error) {
	if buy < 0 || hold < 0 || sell < 0 {
		return AnalystRatings{}, fmt.Errorf("analyst ratings: negative share: %w", ErrInvalidParameter)
	}
	total := buy + hold + sell
	if total == 0 {
		return AnalystRatings{}, fmt.Errorf("analyst ratings: zero total: %w", ErrInvalidParameter)
	}
	return AnalystRatings{
		Buy:  buy / total * 100,
		Hold: hold / total * 100,
		Sell: sell / total * 100,
	}, nil
}
