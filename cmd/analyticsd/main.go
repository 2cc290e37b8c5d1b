// cmd/analyticsd runs the portfolio and market analytics engine: quote
// polling, per-symbol indicator pipelines, alerting, persistence, and the
// REST + WebSocket API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aurelius-engine/config"
	"aurelius-engine/internal/app"
	"aurelius-engine/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.Init("analyticsd", logger.ParseLevel(cfg.LogLevel))
	log.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"metrics_addr", cfg.MetricsAddr,
		"symbols", cfg.Symbols,
		"poll_interval", cfg.PollInterval.String(),
		"indicators", len(cfg.Indicators),
	)

	svc, err := app.New(cfg)
	if err != nil {
		log.Error("init failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
