// Package redis fans pipeline output out to Redis: Pub/Sub channels for live
// consumers, latest-quote hashes for late joiners and a capped stream of
// alert events. Redis is optional; every write goes through a circuit
// breaker and a failure is logged, never fatal.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"aurelius-engine/internal/breaker"
	"aurelius-engine/internal/metrics"
	"aurelius-engine/internal/model"
	"aurelius-engine/internal/pipeline"
)

const (
	defaultLatestTTL = 30 * time.Minute
	alertStreamKey   = "stream:alerts"
	alertStreamLen   = 10000
)

// QuoteChannel is the Pub/Sub channel for a symbol's quotes.
func QuoteChannel(symbol string) string { return "pub:quote:" + symbol }

// IndicatorChannel is the Pub/Sub channel for one indicator line.
func IndicatorChannel(name string, tf model.Timeframe, symbol string) string {
	return "pub:ind:" + name + ":" + string(tf) + ":" + symbol
}

// AlertChannel is the Pub/Sub channel for a symbol's alert events.
func AlertChannel(symbol string) string { return "pub:alert:" + symbol }

// LatestKey is the hash holding a symbol's latest quote.
func LatestKey(symbol string) string { return "latest:quote:" + symbol }

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// IndicatorPoint is the payload published on an indicator channel.
type IndicatorPoint struct {
	Name   string          `json:"name"`
	Symbol string          `json:"symbol"`
	TF     model.Timeframe `json:"tf"`
	Value  float64         `json:"value"`
	TS     time.Time       `json:"ts"`
}

// Writer publishes pipeline updates to Redis.
type Writer struct {
	client  *goredis.Client
	breaker *breaker.Breaker
	prom    *metrics.Metrics
	log     *slog.Logger
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a Writer and pings the server.
func New(cfg WriterConfig, br *breaker.Breaker, prom *metrics.Metrics) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	w := NewWithClient(client, br, prom)
	w.log.Info("connected", "addr", cfg.Addr)
	return w, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, br *breaker.Breaker, prom *metrics.Metrics) *Writer {
	return &Writer{
		client:  client,
		breaker: br,
		prom:    prom,
		log:     slog.Default().With("component", "redis"),
	}
}

// Run publishes updates until ctx is cancelled or updates is closed.
func (w *Writer) Run(ctx context.Context, updates <-chan pipeline.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := w.WriteUpdate(ctx, u); err != nil && !errors.Is(err, breaker.ErrOpen) {
				w.log.Warn("publish failed", "symbol", u.Stock.Key(), "trace_id", u.TraceID, "error", err)
			}
		}
	}
}

// WriteUpdate publishes one pipeline update in a single round trip: the
// latest-quote hash, the quote channel, the latest point of every ready
// indicator, and any alert events.
func (w *Writer) WriteUpdate(ctx context.Context, u pipeline.Update) error {
	sym := u.Stock.Key()
	q := u.Stock.Quote()
	quoteJSON, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: encode quote %s: %w", sym, err)
	}

	start := time.Now()
	err = w.breaker.Do(ctx, func(ctx context.Context) error {
		pipe := w.client.Pipeline()

		latest := LatestKey(sym)
		pipe.HSet(ctx, latest, map[string]interface{}{
			"price":          strconv.FormatFloat(q.Price, 'f', -1, 64),
			"percent_change": strconv.FormatFloat(q.PercentChange, 'f', -1, 64),
			"volume":         strconv.FormatFloat(q.Volume, 'f', -1, 64),
			"ts":             q.TS.UnixMilli(),
			"stale":          strconv.FormatBool(u.Stock.Stale),
		})
		pipe.Expire(ctx, latest, defaultLatestTTL)
		pipe.Publish(ctx, QuoteChannel(sym), string(quoteJSON))

		for i := range u.Indicators {
			ind := &u.Indicators[i]
			v, ok := ind.Latest()
			if !ok {
				continue
			}
			b, err := json.Marshal(IndicatorPoint{Name: ind.Name, Symbol: sym, TF: ind.TF, Value: v, TS: ind.TS})
			if err != nil {
				return err
			}
			pipe.Publish(ctx, IndicatorChannel(ind.Name, ind.TF, sym), string(b))
		}

		for _, ev := range u.Events {
			b, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			pipe.Publish(ctx, AlertChannel(sym), string(b))
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: alertStreamKey,
				MaxLen: alertStreamLen,
				Approx: true,
				Values: map[string]interface{}{"data": string(b)},
			})
		}

		_, err := pipe.Exec(ctx)
		return err
	})
	if w.prom != nil {
		w.prom.RedisWriteDur.Observe(time.Since(start).Seconds())
	}
	return err
}

// LatestQuote reads a symbol's latest-quote hash. Returns model.ErrNotFound
// if the hash is missing or expired.
func (w *Writer) LatestQuote(ctx context.Context, symbol string) (model.Quote, error) {
	var fields map[string]string
	err := w.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		fields, err = w.client.HGetAll(ctx, LatestKey(symbol)).Result()
		return err
	})
	if err != nil {
		return model.Quote{}, fmt.Errorf("redis: latest %s: %w", symbol, err)
	}
	if len(fields) == 0 {
		return model.Quote{}, fmt.Errorf("redis: latest %s: %w", symbol, model.ErrNotFound)
	}
	return parseLatest(symbol, fields)
}

func parseLatest(symbol string, fields map[string]string) (model.Quote, error) {
	q := model.Quote{Symbol: symbol}
	var err error
	if q.Price, err = strconv.ParseFloat(fields["price"], 64); err != nil {
		return model.Quote{}, fmt.Errorf("redis: latest %s: price: %w", symbol, err)
	}
	q.PercentChange, _ = strconv.ParseFloat(fields["percent_change"], 64)
	q.Volume, _ = strconv.ParseFloat(fields["volume"], 64)
	if ms, err := strconv.ParseInt(fields["ts"], 10, 64); err == nil {
		q.TS = time.UnixMilli(ms).UTC()
	}
	return q, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
