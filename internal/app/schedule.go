package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// schedule registers the periodic jobs: state autosave and price history
// retention.
func (svc *Service) schedule() (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(svc.cfg.AutosaveSpec, svc.autosave); err != nil {
		return nil, fmt.Errorf("app: autosave spec %q: %w", svc.cfg.AutosaveSpec, err)
	}
	if _, err := c.AddFunc("@daily", svc.prune); err != nil {
		return nil, fmt.Errorf("app: prune schedule: %w", err)
	}
	return c, nil
}

func (svc *Service) autosave() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Save(ctx); err != nil {
		svc.log.Error("autosave failed", "error", err)
		return
	}
	svc.log.Debug("autosave complete")
}

func (svc *Service) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := svc.store.PruneBefore(ctx, time.Now().Add(-svc.cfg.HistoryRetention))
	if err != nil {
		svc.log.Error("history prune failed", "error", err)
		return
	}
	svc.log.Info("pruned price history", "rows", n)
}

// Save persists the portfolio and alerts.
func (svc *Service) Save(ctx context.Context) error {
	svc.saveMu.Lock()
	defer svc.saveMu.Unlock()

	start := time.Now()
	defer func() { svc.prom.SQLiteSaveDur.Observe(time.Since(start).Seconds()) }()

	if err := svc.store.SavePortfolio(ctx, svc.ledger.State()); err != nil {
		svc.health.SetSQLiteOK(false)
		return err
	}
	if err := svc.store.SaveAlerts(ctx, svc.alerts.Alerts()); err != nil {
		svc.health.SetSQLiteOK(false)
		return err
	}
	svc.health.SetSQLiteOK(true)
	return nil
}

// saveAlerts persists alerts right after an API mutation.
func (svc *Service) saveAlerts() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.saveMu.Lock()
	defer svc.saveMu.Unlock()
	if err := svc.store.SaveAlerts(ctx, svc.alerts.Alerts()); err != nil {
		svc.log.Error("save alerts failed", "error", err)
	}
}
