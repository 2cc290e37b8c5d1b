package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"aurelius-engine/internal/metrics"
	"aurelius-engine/internal/model"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 15 * time.Second
)

// Dispatcher decouples alert evaluation from delivery. Enqueue never blocks;
// when the queue is full the event is dropped and counted.
type Dispatcher struct {
	notifier Notifier
	queue    chan model.AlertEvent
	prom     *metrics.Metrics
	timeout  time.Duration
	log      *slog.Logger

	wg   sync.WaitGroup
	once sync.Once
}

// NewDispatcher creates a dispatcher with the given queue size.
func NewDispatcher(n Notifier, queueSize int, prom *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		notifier: n,
		queue:    make(chan model.AlertEvent, queueSize),
		prom:     prom,
		timeout:  defaultSendTimeout,
		log:      slog.Default().With("component", "notify"),
	}
}

// Enqueue queues ev for delivery. Returns false if it was dropped.
func (d *Dispatcher) Enqueue(ev model.AlertEvent) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		if d.prom != nil {
			d.prom.NotificationsDropped.Inc()
		}
		d.log.Warn("notification queue full, dropping", "alert_id", ev.AlertID, "symbol", ev.Symbol)
		return false
	}
}

// Start launches the delivery goroutine. It drains the queue after ctx is
// cancelled and exits once Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range d.queue {
			d.deliver(ctx, ev)
		}
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, ev model.AlertEvent) {
	// Delivery outlives ctx during shutdown drain.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.notifier.Send(sctx, ev); err != nil {
		if d.prom != nil {
			d.prom.NotificationsFailed.Inc()
		}
		d.log.Error("notification failed", "alert_id", ev.AlertID, "symbol", ev.Symbol, "error", err)
	}
}

// Close waits for queued events to be delivered. Enqueue must not be called
// after Close.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}
