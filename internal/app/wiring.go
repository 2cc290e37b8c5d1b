package app

import (
	"context"
	"errors"

	"aurelius-engine/internal/marketdata/stream"
	"aurelius-engine/internal/model"
	"aurelius-engine/internal/pipeline"
)

// applyToLedger refreshes holdings and watchlist entries from live
// snapshots and keeps the portfolio gauges current.
func (svc *Service) applyToLedger(ctx context.Context, updates <-chan pipeline.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if !u.Stock.Stale {
				svc.health.SetLastQuoteTime(u.Stock.AsOf)
			}
			stock := u.Stock
			stock.History = nil
			if svc.ledger.UpdateQuote(stock) == 0 {
				continue
			}
			sum := svc.ledger.Summary()
			value, _ := sum.Value.Float64()
			svc.prom.PortfolioValue.Set(value)
			svc.prom.HoldingsCount.Set(float64(sum.HoldingCount))
		}
	}
}

// forwardAlerts hands alert events to the notification dispatcher.
func (svc *Service) forwardAlerts(ctx context.Context, updates <-chan pipeline.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			for _, ev := range u.Events {
				svc.notifier.Enqueue(ev)
			}
		}
	}
}

// quotesOf projects fresh (non-stale) updates onto quotes for the price
// history writer. The output closes when updates closes or ctx is done.
func quotesOf(ctx context.Context, updates <-chan pipeline.Update) <-chan model.Quote {
	out := make(chan model.Quote, cap(updates))
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				if u.Stock.Stale {
					continue
				}
				select {
				case out <- u.Stock.Quote():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// startStream feeds an external quote stream into the pipeline alongside
// the poller.
func (svc *Service) startStream(ctx context.Context, spawn func(func())) error {
	client, err := stream.New(stream.Config{URL: svc.cfg.QuoteStreamURL})
	if err != nil {
		return err
	}
	client.OnReconnect = func() {
		svc.log.Info("quote stream reconnected", "url", svc.cfg.QuoteStreamURL)
	}
	spawn(func() {
		err := client.Run(ctx, svc.pipeline.Submit)
		if err != nil && !errors.Is(err, context.Canceled) {
			svc.log.Error("quote stream stopped", "error", err)
		}
	})
	return nil
}
