package marketdata

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"aurelius-engine/internal/model"
)

// Enricher attaches read-only fundamentals to a stock snapshot. It never
// changes the instrument's identity or price fields.
type Enricher interface {
	Enrich(s model.Stock) (model.Stock, error)
}

// DemoEnricher derives plausible fundamentals from the symbol, so the same
// symbol always gets the same figures.
type DemoEnricher struct{}

// Enrich implements Enricher.
func (DemoEnricher) Enrich(s model.Stock) (model.Stock, error) {
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("marketdata: enrich: %w", err)
	}
	h := fnv.New64a()
	h.Write([]byte(s.Key()))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	ratings, err := model.NewAnalystRatings(
		float64(5+rng.Intn(20)),
		float64(3+rng.Intn(10)),
		float64(rng.Intn(5)),
	)
	if err != nil {
		return s, fmt.Errorf("marketdata: enrich %s: %w", s.Key(), err)
	}

	price := s.Price
	e := &model.Enrichment{
		MarketCap:      price * float64(1+rng.Intn(20)) * 1e9,
		PERatio:        10 + rng.Float64()*40,
		YearHigh:       price * (1 + rng.Float64()*0.3),
		YearLow:        price * (1 - rng.Float64()*0.3),
		AvgVolume:      float64(1_000_000 + rng.Intn(50_000_000)),
		DividendYield:  rng.Float64() * 3,
		TargetPrice:    price * (0.9 + rng.Float64()*0.3),
		Description:    fmt.Sprintf("%s (%s) is a publicly traded company.", s.Name, s.Symbol),
		AnalystRatings: ratings,
	}
	s.Enrichment = e
	return s, nil
}
