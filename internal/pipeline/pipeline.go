// Package pipeline serializes quote handling per symbol while letting
// different symbols proceed in parallel.
//
// Each symbol gets one worker goroutine fed by an SPSC ring. A worker runs
// history append → indicator recompute → alert evaluation for one quote at a
// time, so indicator and alert reads never see a half-updated history.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"aurelius-engine/internal/alert"
	"aurelius-engine/internal/indicator"
	"aurelius-engine/internal/logger"
	"aurelius-engine/internal/metrics"
	"aurelius-engine/internal/model"
	"aurelius-engine/internal/ringbuf"
)

var (
	// ErrQueueFull is returned by Submit when a symbol's queue is full.
	ErrQueueFull = errors.New("pipeline: queue full")
	// ErrNotRunning is returned by Submit before Start or after Stop.
	ErrNotRunning = errors.New("pipeline: not running")
)

// Config tunes the pipeline. Zero values take defaults.
type Config struct {
	HistoryCap int             // prices kept per symbol, default 512
	QueueCap   int             // ring capacity per symbol, default 256
	Timeframe  model.Timeframe // label on live indicator results, default 1D
}

// Update is handed to OnUpdate after each processed quote or stale mark.
type Update struct {
	Stock      model.Stock             `json:"stock"`
	Indicators []model.IndicatorResult `json:"indicators,omitempty"`
	Events     []model.AlertEvent      `json:"events,omitempty"`
	TraceID    string                  `json:"trace_id"`
}

// Snapshot is the latest state of one symbol.
type Snapshot struct {
	Stock      model.Stock             `json:"stock"`
	Indicators []model.IndicatorResult `json:"indicators"`
}

type job struct {
	quote model.Quote
	stale bool
	err   error
	seed  *model.Stock // history in seed.History
}

// Service owns the per-symbol workers.
type Service struct {
	cfg    Config
	engine *indicator.Engine
	alerts *alert.Evaluator
	prom   *metrics.Metrics
	log    *slog.Logger

	// OnUpdate is called from worker goroutines, concurrently for different
	// symbols and in order for the same symbol. Set it before Start.
	OnUpdate func(Update)

	// pmu makes Submit/MarkStale the single producer of every ring.
	pmu sync.Mutex

	mu      sync.RWMutex
	workers map[string]*worker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Service. prom may be nil.
func New(cfg Config, engine *indicator.Engine, alerts *alert.Evaluator, prom *metrics.Metrics) *Service {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 512
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 256
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = model.TF1D
	}
	return &Service{
		cfg:     cfg,
		engine:  engine,
		alerts:  alerts,
		prom:    prom,
		log:     slog.Default().With("component", "pipeline"),
		workers: make(map[string]*worker),
	}
}

// Start launches workers for every seeded symbol; later symbols get a worker
// on first use. Workers stop when ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, w := range s.workers {
		s.launch(w)
	}
}

// Stop cancels all workers and waits for them to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Seed installs the last known snapshot and stored history for a symbol,
// typically before any quote arrives. Before Start it is applied at once so
// Latest has something to serve; while running it is queued on the symbol's
// ring like a quote, so it never interleaves with quote processing.
func (s *Service) Seed(stock model.Stock, history []float64) error {
	if err := stock.Validate(); err != nil {
		return fmt.Errorf("pipeline: seed: %w", err)
	}
	hist := make([]float64, 0, s.cfg.HistoryCap)
	for _, p := range tail(history, s.cfg.HistoryCap) {
		if p > 0 {
			hist = append(hist, p)
		}
	}
	if len(hist) == 0 {
		hist = append(hist, stock.Price)
	}
	stock.History = hist

	w := s.worker(stock.Key())
	s.mu.RLock()
	if s.ctx == nil {
		// No worker goroutines yet, and Start waits for s.mu.
		defer s.mu.RUnlock()
		return s.applySeed(w, stock)
	}
	s.mu.RUnlock()
	return s.enqueue(stock.Key(), job{quote: model.Quote{Symbol: stock.Key()}, seed: &stock})
}

// applySeed installs a seeded snapshot. Prices a live quote already added
// are kept after the seeded history, and the live quote fields win.
func (s *Service) applySeed(w *worker, stock model.Stock) error {
	w.mu.RLock()
	prev := w.stock
	w.mu.RUnlock()
	if prev.Key() != "" {
		live := prev.History
		hist := make([]float64, 0, len(stock.History)+len(live))
		hist = append(hist, stock.History...)
		hist = append(hist, live...)
		stock = stock.WithQuote(prev.Quote())
		stock.History = tail(hist, s.cfg.HistoryCap)
	}

	inds, err := s.engine.Compute(stock.Key(), s.cfg.Timeframe, stock.History)
	if err != nil {
		return fmt.Errorf("pipeline: seed %s: %w", stock.Key(), err)
	}

	w.mu.Lock()
	w.stock = stock
	w.indicators = inds
	w.mu.Unlock()
	return nil
}

// Submit enqueues a quote for its symbol's worker.
func (s *Service) Submit(q model.Quote) error {
	if q.Symbol == "" {
		return fmt.Errorf("pipeline: submit: empty symbol: %w", model.ErrInvalidParameter)
	}
	return s.enqueue(q.Symbol, job{quote: q})
}

// MarkStale records that the provider failed to refresh symbol. The worker
// keeps the last known snapshot and flags it stale.
func (s *Service) MarkStale(symbol string, cause error) error {
	return s.enqueue(symbol, job{quote: model.Quote{Symbol: symbol}, stale: true, err: cause})
}

func (s *Service) enqueue(symbol string, j job) error {
	s.mu.RLock()
	running := s.ctx != nil && s.ctx.Err() == nil
	s.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	w := s.worker(symbol)
	s.pmu.Lock()
	ok := w.ring.Push(j)
	s.pmu.Unlock()
	if !ok {
		if s.prom != nil {
			s.prom.RingOverflow.Inc()
		}
		return fmt.Errorf("pipeline: %s: %w", symbol, ErrQueueFull)
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Latest returns the current snapshot of symbol.
func (s *Service) Latest(symbol string) (Snapshot, bool) {
	s.mu.RLock()
	w, ok := s.workers[symbol]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stock.Key() == "" {
		return Snapshot{}, false
	}
	inds := make([]model.IndicatorResult, len(w.indicators))
	copy(inds, w.indicators)
	return Snapshot{Stock: w.stock, Indicators: inds}, true
}

// Symbols returns every symbol with a worker, sorted.
func (s *Service) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.workers))
	for sym := range s.workers {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// worker returns the worker for symbol, creating (and launching, when
// running) it on first use.
func (s *Service) worker(symbol string) *worker {
	s.mu.RLock()
	w, ok := s.workers[symbol]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[symbol]; ok {
		return w
	}
	w = &worker{
		symbol: symbol,
		ring:   ringbuf.New[job](s.cfg.QueueCap),
		wake:   make(chan struct{}, 1),
	}
	s.workers[symbol] = w
	if s.ctx != nil {
		s.launch(w)
	}
	return w
}

// launch must be called with s.mu held.
func (s *Service) launch(w *worker) {
	s.wg.Add(1)
	if s.prom != nil {
		s.prom.PipelineWorkers.Inc()
	}
	go func(ctx context.Context) {
		defer s.wg.Done()
		if s.prom != nil {
			defer s.prom.PipelineWorkers.Dec()
		}
		s.run(ctx, w)
	}(s.ctx)
}

func (s *Service) run(ctx context.Context, w *worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		for {
			j, ok := w.ring.Pop()
			if !ok {
				break
			}
			switch {
			case j.seed != nil:
				if err := s.applySeed(w, *j.seed); err != nil {
					s.log.Error("seed failed", "symbol", w.symbol, "error", err)
				}
			case j.stale:
				s.processStale(w, j.err)
			default:
				s.process(w, j.quote)
			}
		}
	}
}

func (s *Service) process(w *worker, q model.Quote) {
	if !(q.Price > 0) {
		s.log.Warn("dropping quote with non-positive price", "symbol", q.Symbol, "price", q.Price)
		return
	}
	if q.TS.IsZero() {
		q.TS = time.Now().UTC()
	}
	traceID := logger.GenerateTraceID(q.Symbol, q.TS)
	ctx := logger.WithTraceID(context.Background(), traceID)

	w.mu.RLock()
	prev := w.stock
	w.mu.RUnlock()
	if prev.Key() == "" {
		prev = model.Stock{ID: q.Symbol, Symbol: q.Symbol, Name: q.Symbol}
	}

	// New backing array each time: earlier snapshots share the old one.
	src := tail(prev.History, s.cfg.HistoryCap-1)
	hist := make([]float64, len(src), len(src)+1)
	copy(hist, src)
	hist = append(hist, q.Price)

	stock := prev.WithQuote(q)
	stock.History = hist

	start := time.Now()
	inds, err := s.engine.Compute(q.Symbol, s.cfg.Timeframe, hist)
	if s.prom != nil {
		s.prom.IndicatorComputeDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// Configs are validated at construction; keep the last results.
		s.log.Error("indicator compute failed", append(logger.LogWithTrace(ctx), "symbol", q.Symbol, "error", err)...)
		w.mu.RLock()
		inds = w.indicators
		w.mu.RUnlock()
	}

	var events []model.AlertEvent
	if s.alerts != nil {
		events = s.alerts.Evaluate(q)
	}

	w.mu.Lock()
	w.stock = stock
	w.indicators = inds
	w.mu.Unlock()

	if s.prom != nil {
		s.prom.QuotesTotal.WithLabelValues(q.Symbol).Inc()
		s.prom.IndicatorsTotal.Add(float64(len(inds)))
		for _, ev := range events {
			s.prom.AlertsFired.WithLabelValues(string(ev.Kind)).Inc()
		}
	}
	for _, ev := range events {
		s.log.Info("alert triggered", append(logger.LogWithTrace(ctx),
			"alert_id", ev.AlertID, "symbol", ev.Symbol, "kind", ev.Kind,
			"observed", ev.Observed, "threshold", ev.Threshold)...)
	}
	s.log.Debug("quote processed", append(logger.LogWithTrace(ctx), "symbol", q.Symbol, "price", q.Price, "history", len(hist))...)

	if s.OnUpdate != nil {
		s.OnUpdate(Update{Stock: stock, Indicators: inds, Events: events, TraceID: traceID})
	}
}

func (s *Service) processStale(w *worker, cause error) {
	w.mu.Lock()
	if w.stock.Key() == "" {
		w.mu.Unlock()
		s.log.Warn("provider failed before first snapshot", "symbol", w.symbol, "error", cause)
		return
	}
	w.stock.Stale = true
	stock := w.stock
	inds := w.indicators
	w.mu.Unlock()

	if s.prom != nil {
		s.prom.StaleQuotes.WithLabelValues(w.symbol).Inc()
	}
	s.log.Warn("serving stale snapshot", "symbol", w.symbol,
		"error", fmt.Errorf("%w: %v", model.ErrStaleQuote, cause), "as_of", stock.AsOf)

	if s.OnUpdate != nil {
		s.OnUpdate(Update{Stock: stock, Indicators: inds, TraceID: logger.GenerateTraceID(w.symbol, time.Now())})
	}
}

type worker struct {
	symbol string
	ring   *ringbuf.Ring[job]
	wake   chan struct{}

	mu         sync.RWMutex
	stock      model.Stock
	indicators []model.IndicatorResult
}

func tail(xs []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if len(xs) > n {
		return xs[len(xs)-n:]
	}
	return xs
}
