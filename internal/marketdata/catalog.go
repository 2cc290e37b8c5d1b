package marketdata

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"aurelius-engine/internal/model"
	"aurelius-engine/internal/sampler"
)

type listing struct {
	symbol, name string
	price, pc    float64
}

// Ten instruments of the demo universe with their opening quote.
var demoListings = []listing{
	{"AAPL", "Apple Inc.", 185.92, 1.25},
	{"MSFT", "Microsoft Corporation", 337.50, -0.48},
	{"AMZN", "Amazon.com Inc.", 183.05, 2.10},
	{"GOOGL", "Alphabet Inc.", 142.25, 0.75},
	{"META", "Meta Platforms Inc.", 378.66, -1.22},
	{"TSLA", "Tesla Inc.", 215.38, 3.42},
	{"NVDA", "NVIDIA Corporation", 476.35, 4.18},
	{"JPM", "JPMorgan Chase & Co.", 156.48, -0.33},
	{"V", "Visa Inc.", 248.53, 0.12},
	{"WMT", "Walmart Inc.", 58.78, 0.89},
}

type instrument struct {
	stock     model.Stock
	prevClose float64
}

// Catalog is an in-memory Provider over the demo universe. Each FetchQuote
// moves the price by a small random walk, like a live feed would.
type Catalog struct {
	mu      sync.Mutex
	rng     *rand.Rand
	byKey   map[string]*instrument
	order   []string
	history sampler.Sampler
	now     func() time.Time
}

// NewCatalog seeds the demo universe. History requests are served by a
// Synthetic sampler on the same seed.
func NewCatalog(seed int64) *Catalog {
	c := &Catalog{
		rng:     rand.New(rand.NewSource(seed)),
		byKey:   make(map[string]*instrument, len(demoListings)),
		history: sampler.Synthetic{Seed: seed},
		now:     time.Now,
	}
	for _, l := range demoListings {
		s := model.Stock{
			ID:            l.symbol,
			Symbol:        l.symbol,
			Name:          l.name,
			Price:         l.price,
			PercentChange: l.pc,
		}
		c.byKey[l.symbol] = &instrument{stock: s, prevClose: s.PreviousClose()}
		c.order = append(c.order, l.symbol)
	}
	return c
}

// Stocks returns the current snapshot of every instrument in catalog order.
func (c *Catalog) Stocks() []model.Stock {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Stock, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k].stock)
	}
	return out
}

// Lookup returns the current snapshot of symbol without moving its price.
func (c *Catalog) Lookup(symbol string) (model.Stock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.byKey[strings.ToUpper(symbol)]
	if !ok {
		return model.Stock{}, fmt.Errorf("marketdata: %q: %w", symbol, model.ErrNotFound)
	}
	return in.stock, nil
}

// FetchQuote implements Provider.
func (c *Catalog) FetchQuote(ctx context.Context, symbol string) (model.Stock, error) {
	if err := ctx.Err(); err != nil {
		return model.Stock{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.byKey[strings.ToUpper(symbol)]
	if !ok {
		return model.Stock{}, fmt.Errorf("marketdata: quote %q: %w", symbol, model.ErrNotFound)
	}

	// ±0.1% step, floored at one cent.
	step := (c.rng.Float64()*0.2 - 0.1) / 100
	price := in.stock.Price * (1 + step)
	if price < 0.01 {
		price = 0.01
	}
	s := in.stock
	s.Price = roundCents(price)
	s.PercentChange = (s.Price/in.prevClose - 1) * 100
	s.Volume = float64(1_000_000 + c.rng.Intn(9_000_000))
	s.AsOf = c.now().UTC()
	s.Stale = false
	in.stock = s
	return s, nil
}

// FetchHistory implements Provider with a synthetic series.
func (c *Catalog) FetchHistory(ctx context.Context, symbol string, tf model.Timeframe) ([]float64, error) {
	s, err := c.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	return c.history.Sample(ctx, s, tf)
}

// Search matches query case-insensitively against symbol and name. An empty
// query returns nothing. Results are in catalog order.
func (c *Catalog) Search(_ context.Context, query string) ([]model.Stock, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Stock
	for _, k := range c.order {
		s := c.byKey[k].stock
		if strings.Contains(strings.ToLower(s.Symbol), q) || strings.Contains(strings.ToLower(s.Name), q) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Symbols returns the catalog's symbols, sorted.
func (c *Catalog) Symbols() []string {
	out := append([]string(nil), c.order...)
	sort.Strings(out)
	return out
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
