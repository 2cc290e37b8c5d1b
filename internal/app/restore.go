package app

import (
	"context"
	"fmt"
	"time"

	"aurelius-engine/internal/marketdata"
	"aurelius-engine/internal/portfolio"
)

type sampleLot struct {
	symbol  string
	shares  int64
	price   float64
	ageDays int
}

// Starting portfolio for a fresh database.
var (
	sampleLots = []sampleLot{
		{"AAPL", 10, 175.50, 90},
		{"MSFT", 5, 320.25, 60},
		{"NVDA", 8, 400.10, 30},
	}
	sampleWatchlist = []string{"AAPL", "MSFT", "GOOGL", "AMZN"}
)

// restore loads the saved portfolio and alerts, or installs the sample
// portfolio when nothing was saved yet.
func (svc *Service) restore(ctx context.Context) error {
	st, ok, err := svc.store.LoadPortfolio(ctx)
	if err != nil {
		return fmt.Errorf("app: load portfolio: %w", err)
	}
	if ok {
		if err := svc.ledger.Restore(st); err != nil {
			return fmt.Errorf("app: restore portfolio: %w", err)
		}
		svc.log.Info("portfolio restored", "holdings", len(st.Holdings), "watchlist", len(st.Watchlist))
	} else {
		if err := SeedSample(svc.ledger, svc.catalog, time.Now().UTC()); err != nil {
			return fmt.Errorf("app: sample portfolio: %w", err)
		}
		svc.log.Info("no saved portfolio, installed sample")
	}

	alerts, ok, err := svc.store.LoadAlerts(ctx)
	if err != nil {
		return fmt.Errorf("app: load alerts: %w", err)
	}
	if ok {
		if err := svc.alerts.Restore(alerts); err != nil {
			return fmt.Errorf("app: restore alerts: %w", err)
		}
		svc.log.Info("alerts restored", "count", len(alerts))
	}
	return nil
}

// SeedSample fills an empty ledger with the sample portfolio and watchlist.
func SeedSample(l *portfolio.Ledger, cat *marketdata.Catalog, now time.Time) error {
	for _, lot := range sampleLots {
		stock, err := cat.Lookup(lot.symbol)
		if err != nil {
			return err
		}
		bought := now.AddDate(0, 0, -lot.ageDays)
		if _, err := l.AddHolding(stock, lot.shares, lot.price, bought); err != nil {
			return err
		}
	}
	for _, sym := range sampleWatchlist {
		stock, err := cat.Lookup(sym)
		if err != nil {
			return err
		}
		l.AddToWatchlist(stock)
	}
	return nil
}

// warmUp seeds the pipeline from stored price history so indicators are
// ready before the first poll. Symbols without history are left for the
// poller, which seeds them from the provider.
func (svc *Service) warmUp(ctx context.Context) {
	enricher := marketdata.DemoEnricher{}
	warmed := 0
	for _, sym := range svc.Symbols() {
		hist, err := svc.store.History(ctx, sym, svc.cfg.HistoryCap)
		if err != nil {
			svc.log.Warn("history read failed", "symbol", sym, "error", err)
			continue
		}
		if len(hist) == 0 {
			continue
		}
		stock, err := svc.catalog.Lookup(sym)
		if err != nil {
			continue
		}
		stock.Price = hist[len(hist)-1]
		if enriched, err := enricher.Enrich(stock); err == nil {
			stock = enriched
		}
		if err := svc.pipeline.Seed(stock, hist); err != nil {
			svc.log.Warn("seed from history failed", "symbol", sym, "error", err)
			continue
		}
		svc.poller.MarkSeeded(sym)
		warmed++
	}
	if warmed > 0 {
		svc.log.Info("warmed up from stored history", "symbols", warmed)
	}
}
