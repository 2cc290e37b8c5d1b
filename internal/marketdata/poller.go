package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"aurelius-engine/internal/breaker"
	"aurelius-engine/internal/metrics"
	"aurelius-engine/internal/model"
)

// Sink receives what the Poller fetched. pipeline.Service implements it.
type Sink interface {
	Seed(stock model.Stock, history []float64) error
	Submit(q model.Quote) error
	MarkStale(symbol string, cause error) error
}

// PollerConfig tunes a Poller. Zero values take defaults.
type PollerConfig struct {
	Interval time.Duration   // default 5s
	Timeout  time.Duration   // per fetch, default 3s
	Warmup   model.Timeframe // history fetched when a symbol is first seen, default 1M
}

// Poller periodically fetches quotes for a dynamic symbol set. Provider
// calls go through a circuit breaker; a failed or short-circuited fetch marks
// the symbol stale instead of failing.
type Poller struct {
	cfg      PollerConfig
	provider Provider
	enricher Enricher
	breaker  *breaker.Breaker
	sink     Sink
	symbols  func() []string
	prom     *metrics.Metrics
	log      *slog.Logger

	// OnHealth reports whether the last round had at least one success.
	OnHealth func(ok bool)

	mu     sync.Mutex
	seeded map[string]bool
}

// NewPoller creates a Poller. enricher and prom may be nil.
func NewPoller(cfg PollerConfig, p Provider, enricher Enricher, br *breaker.Breaker, sink Sink, symbols func() []string, prom *metrics.Metrics) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Warmup == "" {
		cfg.Warmup = model.TF1M
	}
	return &Poller{
		cfg:      cfg,
		provider: p,
		enricher: enricher,
		breaker:  br,
		sink:     sink,
		symbols:  symbols,
		prom:     prom,
		log:      slog.Default().With("component", "poller"),
		seeded:   make(map[string]bool),
	}
}

// MarkSeeded tells the Poller a symbol was already seeded from storage.
func (p *Poller) MarkSeeded(symbol string) {
	p.mu.Lock()
	p.seeded[symbol] = true
	p.mu.Unlock()
}

// Run polls immediately and then every Interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	p.log.Info("poller started", "interval", p.cfg.Interval)
	for {
		p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce fetches every tracked symbol once and returns how many succeeded.
func (p *Poller) PollOnce(ctx context.Context) int {
	symbols := p.symbols()
	ok := 0
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return ok
		}
		if err := p.pollSymbol(ctx, sym); err != nil {
			if errors.Is(err, context.Canceled) {
				return ok
			}
			if serr := p.sink.MarkStale(sym, err); serr != nil {
				p.log.Debug("mark stale rejected", "symbol", sym, "error", serr)
			}
			continue
		}
		ok++
	}
	if p.OnHealth != nil && len(symbols) > 0 {
		p.OnHealth(ok > 0)
	}
	return ok
}

func (p *Poller) pollSymbol(ctx context.Context, sym string) error {
	var stock model.Stock
	start := time.Now()
	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		var err error
		stock, err = p.provider.FetchQuote(cctx, sym)
		return err
	})
	if p.prom != nil {
		p.prom.ProviderFetchDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		p.log.Warn("quote fetch failed", "symbol", sym, "error", err, "breaker", p.breaker.State().String())
		return err
	}

	p.mu.Lock()
	seeded := p.seeded[sym]
	p.mu.Unlock()
	if seeded {
		return p.sink.Submit(stock.Quote())
	}

	if p.enricher != nil {
		if enriched, err := p.enricher.Enrich(stock); err == nil {
			stock = enriched
		} else {
			p.log.Warn("enrichment failed", "symbol", sym, "error", err)
		}
	}
	hctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	hist, err := p.provider.FetchHistory(hctx, sym, p.cfg.Warmup)
	cancel()
	if err != nil {
		p.log.Warn("history fetch failed, seeding without history", "symbol", sym, "error", err)
		hist = nil
	}
	if err := p.sink.Seed(stock, hist); err != nil {
		return err
	}
	p.MarkSeeded(sym)
	return nil
}
