// Package metrics exposes Prometheus metrics and the /healthz endpoint of
// the analytics engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the analytics engine.
type Metrics struct {
	QuotesTotal  *prometheus.CounterVec // labels: symbol
	StaleQuotes  *prometheus.CounterVec // labels: symbol
	RingOverflow prometheus.Counter

	// Pipeline
	PipelineWorkers     prometheus.Gauge
	IndicatorComputeDur prometheus.Histogram
	IndicatorsTotal     prometheus.Counter

	// Alerts and delivery
	AlertsFired          *prometheus.CounterVec // labels: kind
	NotificationsFailed  prometheus.Counter
	NotificationsDropped prometheus.Counter

	// Portfolio
	PortfolioValue prometheus.Gauge
	HoldingsCount  prometheus.Gauge

	// Collaborators
	RedisWriteDur     prometheus.Histogram
	SQLiteSaveDur     prometheus.Histogram
	ProviderFetchDur  prometheus.Histogram
	BreakerState      *prometheus.GaugeVec   // labels: name; 0=closed, 1=open, 2=half-open
	BreakerTrips      *prometheus.CounterVec // labels: name
	WSClients         prometheus.Gauge
	WSMessagesDropped prometheus.Counter
}

// New creates the metrics and registers them on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_quotes_total",
			Help: "Quotes processed by the pipeline",
		}, []string{"symbol"}),
		StaleQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_stale_quotes_total",
			Help: "Provider failures that left a symbol on its last known snapshot",
		}, []string{"symbol"}),
		RingOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_ringbuf_overflow_total",
			Help: "Quotes dropped because a symbol queue was full",
		}),

		PipelineWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analytics_pipeline_workers",
			Help: "Per-symbol pipeline workers running",
		}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analytics_indicator_compute_duration_seconds",
			Help:    "Indicator engine compute latency per quote",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		IndicatorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_indicator_results_total",
			Help: "Indicator series computed",
		}),

		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_alerts_fired_total",
			Help: "Alert Armed to Triggered transitions",
		}, []string{"kind"}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_notifications_failed_total",
			Help: "Alert notifications that could not be delivered",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_notifications_dropped_total",
			Help: "Alert notifications dropped because the dispatch queue was full",
		}),

		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analytics_portfolio_value",
			Help: "Current portfolio valuation",
		}),
		HoldingsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analytics_holdings",
			Help: "Number of holdings in the portfolio",
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analytics_redis_write_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteSaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analytics_sqlite_save_duration_seconds",
			Help:    "SQLite save latency",
			Buckets: prometheus.DefBuckets,
		}),
		ProviderFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analytics_provider_fetch_duration_seconds",
			Help:    "Market data provider quote fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "analytics_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analytics_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSMessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_ws_messages_dropped_total",
			Help: "WebSocket messages dropped for slow clients",
		}),
	}

	reg.MustRegister(
		m.QuotesTotal,
		m.StaleQuotes,
		m.RingOverflow,
		m.PipelineWorkers,
		m.IndicatorComputeDur,
		m.IndicatorsTotal,
		m.AlertsFired,
		m.NotificationsFailed,
		m.NotificationsDropped,
		m.PortfolioValue,
		m.HoldingsCount,
		m.RedisWriteDur,
		m.SQLiteSaveDur,
		m.ProviderFetchDur,
		m.BreakerState,
		m.BreakerTrips,
		m.WSClients,
		m.WSMessagesDropped,
	)

	return m
}

// ObserveBreaker records a breaker transition. to is the numeric breaker
// state; 1 means open.
func (m *Metrics) ObserveBreaker(name string, to int) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
	if to == 1 {
		m.BreakerTrips.WithLabelValues(name).Inc()
	}
}
