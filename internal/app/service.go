// Package app wires the analytics engine together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"aurelius-engine/config"
	"aurelius-engine/internal/alert"
	"aurelius-engine/internal/breaker"
	"aurelius-engine/internal/gateway"
	"aurelius-engine/internal/indicator"
	"aurelius-engine/internal/marketdata"
	"aurelius-engine/internal/marketdata/bus"
	"aurelius-engine/internal/metrics"
	"aurelius-engine/internal/notification"
	"aurelius-engine/internal/pipeline"
	"aurelius-engine/internal/portfolio"
	"aurelius-engine/internal/sampler"
	redisstore "aurelius-engine/internal/store/redis"
	sqlitestore "aurelius-engine/internal/store/sqlite"
)

const updateBuffer = 1024

// Service is the top-level orchestrator. It wires all dependencies, manages
// lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	reg    *prometheus.Registry
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	store   *sqlitestore.Store
	redis   *redisstore.Writer // nil when REDIS_ADDR is empty
	catalog *marketdata.Catalog

	ledger   *portfolio.Ledger
	alerts   *alert.Evaluator
	pipeline *pipeline.Service
	poller   *marketdata.Poller
	hub      *gateway.Hub
	notifier *notification.Dispatcher

	updates chan pipeline.Update
	fanout  *bus.FanOut[pipeline.Update]
	done    <-chan struct{} // closed when Run stops; nil before Run

	saveMu sync.Mutex
}

// New connects storage, restores saved state and builds every component.
// Redis is optional: a failed connection is logged and the fan-out disabled.
func New(cfg *config.Config) (*Service, error) {
	svc := &Service{
		cfg:     cfg,
		log:     slog.Default().With("component", "app"),
		reg:     prometheus.NewRegistry(),
		health:  metrics.NewHealthStatus(),
		catalog: marketdata.NewCatalog(cfg.SamplerSeed),
		ledger:  portfolio.New(),
		alerts:  alert.NewEvaluator(),
		updates: make(chan pipeline.Update, updateBuffer),
		fanout:  bus.New[pipeline.Update](256),
	}
	svc.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc.prom = metrics.New(svc.reg)

	// ---- Open SQLite ----
	var err error
	svc.store, err = sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	svc.health.SetSQLiteOK(true)

	// ---- Connect to Redis ----
	svc.health.SetRedisEnabled(cfg.RedisAddr != "")
	if cfg.RedisAddr != "" {
		svc.redis, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, svc.newBreaker("redis"), svc.prom)
		if err != nil {
			svc.log.Warn("redis unavailable, fan-out disabled", "addr", cfg.RedisAddr, "error", err)
			svc.redis = nil
		}
	}

	// ---- Restore state ----
	if err := svc.restore(context.Background()); err != nil {
		svc.closeStores()
		return nil, err
	}

	// ---- Pipeline ----
	engine, err := indicator.NewEngine(cfg.Indicators)
	if err != nil {
		svc.closeStores()
		return nil, fmt.Errorf("app: %w", err)
	}
	svc.pipeline = pipeline.New(pipeline.Config{
		HistoryCap: cfg.HistoryCap,
		QueueCap:   cfg.QueueCap,
	}, engine, svc.alerts, svc.prom)
	svc.pipeline.OnUpdate = svc.publish

	svc.poller = marketdata.NewPoller(marketdata.PollerConfig{Interval: cfg.PollInterval},
		svc.catalog, marketdata.DemoEnricher{}, svc.newBreaker("provider"), svc.pipeline, svc.Symbols, svc.prom)
	svc.poller.OnHealth = svc.health.SetProviderOK
	svc.warmUp(context.Background())

	svc.hub = gateway.NewHub(svc.prom)
	svc.notifier = notification.NewDispatcher(svc.buildNotifier(), 0, svc.prom)
	return svc, nil
}

func (svc *Service) newBreaker(name string) *breaker.Breaker {
	br := breaker.New(breaker.Config{Name: name})
	br.OnStateChange = func(name string, from, to breaker.State) {
		svc.log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		svc.prom.ObserveBreaker(name, int(to))
	}
	return br
}

func (svc *Service) buildNotifier() notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier()}
	if svc.cfg.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(svc.cfg.WebhookURL))
	}
	if svc.cfg.TelegramBotToken != "" && svc.cfg.TelegramChatID != "" {
		n = append(n, notification.NewTelegramNotifier(svc.cfg.TelegramBotToken, svc.cfg.TelegramChatID))
	}
	return n
}

// publish hands a pipeline update to the fan-out. Called from workers.
func (svc *Service) publish(u pipeline.Update) {
	select {
	case svc.updates <- u:
	case <-svc.done:
	}
}

// Symbols is the tracked set: configured symbols, holdings, watchlist and
// alert targets, sorted.
func (svc *Service) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range svc.cfg.Symbols {
		add(s)
	}
	for _, s := range svc.ledger.Symbols() {
		add(s)
	}
	for _, a := range svc.alerts.Alerts() {
		add(a.Symbol)
	}
	sort.Strings(out)
	return out
}

// Handler returns the REST + WebSocket handler.
func (svc *Service) Handler() http.Handler {
	api := &gateway.API{
		Ledger:    svc.ledger,
		Alerts:    svc.alerts,
		Pipeline:  svc.pipeline,
		Directory: svc.catalog,
		Sampler: sampler.Resampling{
			Source:   svc.store,
			Fallback: sampler.Synthetic{Seed: svc.cfg.SamplerSeed},
		},
		Health:          svc.health,
		Hub:             svc.hub,
		Start:           svc.health.StartedAt,
		OnAlertsChanged: svc.saveAlerts,
	}
	return api.Handler()
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	svc.log.Info("starting analytics engine", "symbols", svc.Symbols(), "redis", svc.redis != nil)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	svc.done = runCtx.Done()
	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// ---- Fan-out subscribers ----
	svc.fanout.OnDrop = func(name string) {
		svc.log.Debug("fan-out subscriber lagging, update dropped", "subscriber", name)
	}
	ledgerCh := svc.fanout.Subscribe("ledger")
	hubCh := svc.fanout.Subscribe("gateway")
	alertCh := svc.fanout.Subscribe("notify")
	historyCh := svc.fanout.Subscribe("history")
	var redisCh <-chan pipeline.Update
	if svc.redis != nil {
		redisCh = svc.fanout.Subscribe("redis")
	}

	spawn(func() { svc.fanout.Run(runCtx, svc.updates) })
	spawn(func() { svc.applyToLedger(runCtx, ledgerCh) })
	spawn(func() { svc.hub.Run(runCtx, hubCh) })
	spawn(func() { svc.forwardAlerts(runCtx, alertCh) })
	spawn(func() { svc.store.Run(runCtx, quotesOf(runCtx, historyCh)) })
	if redisCh != nil {
		spawn(func() { svc.redis.Run(runCtx, redisCh) })
	}
	svc.notifier.Start(runCtx)

	// ---- Pipeline + market data ----
	svc.pipeline.Start(runCtx)
	spawn(func() { svc.poller.Run(runCtx) })
	if svc.cfg.QuoteStreamURL != "" {
		if err := svc.startStream(runCtx, spawn); err != nil {
			svc.log.Warn("quote stream disabled", "error", err)
		}
	}

	// ---- Servers ----
	svc.health.SetSymbols(len(svc.Symbols()))
	metricsSrv := metrics.NewServer(svc.cfg.MetricsAddr, svc.health, svc.reg)
	metricsSrv.Start()
	svc.health.StartLivenessChecker(runCtx, svc.redisClient(), svc.store.DB(), 10*time.Second)

	apiSrv := &http.Server{
		Addr:              svc.cfg.HTTPAddr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	spawn(func() {
		svc.log.Info("api listening", "addr", svc.cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			svc.log.Error("api server error", "error", err)
		}
	})
	spawn(func() { svc.hub.StartStatsBroadcast(runCtx, svc.health.StartedAt, 2*time.Second) })

	// ---- Scheduled jobs ----
	sched, err := svc.schedule()
	if err != nil {
		stop()
		wg.Wait()
		return err
	}
	sched.Start()

	svc.log.Info("all systems running")
	<-ctx.Done()

	// ---- Graceful shutdown ----
	svc.log.Info("shutdown signal received")
	<-sched.Stop().Done()

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	apiSrv.Shutdown(shutCtx)
	svc.hub.CloseAll()
	metricsSrv.Stop(shutCtx)

	svc.pipeline.Stop()
	stop()
	wg.Wait()
	svc.notifier.Close()

	svc.shutdown(shutCtx)
	return nil
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.redis == nil {
		return nil
	}
	return svc.redis.Client()
}

// shutdown saves final state and closes connections.
func (svc *Service) shutdown(ctx context.Context) {
	if err := svc.Save(ctx); err != nil {
		svc.log.Error("final save failed", "error", err)
	} else {
		svc.log.Info("final state saved")
	}
	svc.closeStores()
	svc.log.Info("shutdown complete")
}

func (svc *Service) closeStores() {
	if svc.redis != nil {
		svc.redis.Close()
	}
	svc.store.Close()
}
