package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurelius-engine/internal/alert"
	"aurelius-engine/internal/indicator"
	"aurelius-engine/internal/metrics"
	"aurelius-engine/internal/model"
)

type collector struct {
	mu      sync.Mutex
	updates []Update
	ch      chan Update
}

func newCollector() *collector { return &collector{ch: make(chan Update, 1024)} }

func (c *collector) on(u Update) {
	c.mu.Lock()
	c.updates = append(c.updates, u)
	c.mu.Unlock()
	c.ch <- u
}

func (c *collector) wait(t *testing.T, n int) []Update {
	t.Helper()
	out := make([]Update, 0, n)
	for len(out) < n {
		select {
		case u := <-c.ch:
			out = append(out, u)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d/%d updates", len(out), n)
		}
	}
	return out
}

func newService(t *testing.T, cfg Config) (*Service, *alert.Evaluator, *metrics.Metrics, *collector) {
	t.Helper()
	eng, err := indicator.NewEngine([]indicator.IndicatorConfig{{Type: indicator.TypeSMA, Period: 3}})
	require.NoError(t, err)
	ev := alert.NewEvaluator()
	prom := metrics.New(prometheus.NewRegistry())
	svc := New(cfg, eng, ev, prom)
	c := newCollector()
	svc.OnUpdate = c.on
	return svc, ev, prom, c
}

func q(sym string, price float64, i int) model.Quote {
	return model.Quote{Symbol: sym, Price: price, TS: time.Unix(1700000000+int64(i), 0).UTC()}
}

func TestSubmit_BeforeStart(t *testing.T) {
	svc, _, _, _ := newService(t, Config{})
	assert.True(t, errors.Is(svc.Submit(q("AAPL", 1, 0)), ErrNotRunning))
}

func TestPipeline_OrderedPerSymbolWithIndicators(t *testing.T) {
	svc, _, prom, c := newService(t, Config{HistoryCap: 4})
	svc.Start(context.Background())
	defer svc.Stop()

	prices := []float64{10, 11, 12, 13, 14, 15}
	for i, p := range prices {
		require.NoError(t, svc.Submit(q("AAPL", p, i)))
	}
	ups := c.wait(t, len(prices))
	for i, u := range ups {
		assert.Equal(t, prices[i], u.Stock.Price, "updates must arrive in submit order")
		assert.NotEmpty(t, u.TraceID)
	}

	last := ups[len(ups)-1]
	assert.Equal(t, []float64{12, 13, 14, 15}, last.Stock.History, "history capped")
	require.Len(t, last.Indicators, 1)
	assert.Equal(t, "SMA_3", last.Indicators[0].Name)
	v, ok := last.Indicators[0].Latest()
	require.True(t, ok)
	assert.InDelta(t, 14.0, v, 1e-12)

	// Earlier snapshots are not rewritten by later quotes.
	assert.Equal(t, []float64{10}, ups[0].Stock.History)

	snap, ok := svc.Latest("AAPL")
	require.True(t, ok)
	assert.Equal(t, 15.0, snap.Stock.Price)
	assert.Equal(t, 6.0, testutil.ToFloat64(prom.QuotesTotal.WithLabelValues("AAPL")))
}

func TestPipeline_SymbolsIndependent(t *testing.T) {
	svc, _, _, c := newService(t, Config{})
	svc.Start(context.Background())
	defer svc.Stop()

	syms := []string{"AAPL", "MSFT", "NVDA", "TSLA"}
	for i := 0; i < 25; i++ {
		for _, s := range syms {
			require.NoError(t, svc.Submit(q(s, float64(100+i), i)))
		}
	}
	ups := c.wait(t, 100)
	lastSeen := map[string]float64{}
	for _, u := range ups {
		sym := u.Stock.Symbol
		assert.Greater(t, u.Stock.Price, lastSeen[sym], "per-symbol order for %s", sym)
		lastSeen[sym] = u.Stock.Price
	}
	assert.Equal(t, syms, svc.Symbols())
}

func TestPipeline_AlertsFireOncePerCrossing(t *testing.T) {
	svc, ev, prom, c := newService(t, Config{})
	_, err := ev.Add(model.CustomAlert{Symbol: "TSLA", Kind: model.AlertPrice, Condition: model.Above, Threshold: 200, Active: true})
	require.NoError(t, err)
	svc.Start(context.Background())
	defer svc.Stop()

	prices := []float64{198, 201, 202, 203, 204, 205, 206}
	for i, p := range prices {
		require.NoError(t, svc.Submit(q("TSLA", p, i)))
	}
	fired := 0
	for _, u := range c.wait(t, len(prices)) {
		fired += len(u.Events)
	}
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.AlertsFired.WithLabelValues("price")))
}

func TestPipeline_SeedAndStale(t *testing.T) {
	svc, _, prom, c := newService(t, Config{})
	require.NoError(t, svc.Seed(model.Stock{ID: "MSFT", Symbol: "MSFT", Name: "Microsoft", Price: 337.5}, []float64{330, 335, 337.5}))

	snap, ok := svc.Latest("MSFT")
	require.True(t, ok)
	assert.Equal(t, []float64{330, 335, 337.5}, snap.Stock.History)
	require.Len(t, snap.Indicators, 1)

	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, svc.MarkStale("MSFT", errors.New("timeout")))
	u := c.wait(t, 1)[0]
	assert.True(t, u.Stock.Stale)
	assert.Equal(t, 337.5, u.Stock.Price)
	assert.Equal(t, "Microsoft", u.Stock.Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.StaleQuotes.WithLabelValues("MSFT")))

	// A fresh quote clears the flag.
	require.NoError(t, svc.Submit(q("MSFT", 340, 1)))
	u = c.wait(t, 1)[0]
	assert.False(t, u.Stock.Stale)
	assert.Equal(t, []float64{330, 335, 337.5, 340}, u.Stock.History)
}

func TestPipeline_StaleBeforeFirstSnapshotIsIgnored(t *testing.T) {
	svc, _, _, c := newService(t, Config{})
	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, svc.MarkStale("GOOGL", errors.New("down")))
	require.NoError(t, svc.Submit(q("GOOGL", 142.25, 0)))
	u := c.wait(t, 1)[0]
	assert.Equal(t, 142.25, u.Stock.Price)
	assert.False(t, u.Stock.Stale)
}

func TestPipeline_DropsNonPositivePrice(t *testing.T) {
	svc, _, _, c := newService(t, Config{})
	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, svc.Submit(q("V", 0, 0)))
	require.NoError(t, svc.Submit(q("V", 248.53, 1)))
	u := c.wait(t, 1)[0]
	assert.Equal(t, []float64{248.53}, u.Stock.History)
}

func TestPipeline_QueueFull(t *testing.T) {
	svc, _, prom, _ := newService(t, Config{QueueCap: 2})
	block := make(chan struct{})
	svc.OnUpdate = func(Update) { <-block }
	svc.Start(context.Background())
	defer svc.Stop()
	defer close(block)

	var full error
	for i := 0; i < 50 && full == nil; i++ {
		full = svc.Submit(q("JPM", 150+float64(i), i))
	}
	assert.True(t, errors.Is(full, ErrQueueFull))
	assert.GreaterOrEqual(t, testutil.ToFloat64(prom.RingOverflow), 1.0)
}

func TestSeed_RejectsInvalid(t *testing.T) {
	svc, _, _, _ := newService(t, Config{})
	err := svc.Seed(model.Stock{ID: "X", Price: -1}, nil)
	assert.True(t, errors.Is(err, model.ErrInvalidParameter))
	_, ok := svc.Latest("X")
	assert.False(t, ok)
}

func TestSeed_WhileRunningIsQueued(t *testing.T) {
	svc, _, _, _ := newService(t, Config{})
	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, svc.Seed(model.Stock{ID: "NVDA", Symbol: "NVDA", Name: "NVIDIA", Price: 402}, []float64{398, 400, 402}))
	require.Eventually(t, func() bool {
		snap, ok := svc.Latest("NVDA")
		return ok && len(snap.Stock.History) == 3
	}, 5*time.Second, 5*time.Millisecond)
}

// Seed and a live quote for the same symbol may land in either order; the
// resulting history keeps both the stored prices and the live one.
func TestSeed_RacesSubmit(t *testing.T) {
	svc, _, _, c := newService(t, Config{})
	svc.Start(context.Background())
	defer svc.Stop()

	for i := 0; i < 50; i++ {
		sym := "T" + string(rune('A'+i%26)) + string(rune('A'+i/26))
		var wg sync.WaitGroup
		var seedErr, submitErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			seedErr = svc.Seed(model.Stock{ID: sym, Symbol: sym, Name: sym, Price: 202}, []float64{200, 201, 202})
		}()
		go func() {
			defer wg.Done()
			submitErr = svc.Submit(q(sym, 205, 1))
		}()
		wg.Wait()
		require.NoError(t, seedErr)
		require.NoError(t, submitErr)
		c.wait(t, 1)

		require.NoError(t, svc.Submit(q(sym, 210, 2)))
		u := c.wait(t, 1)[0]
		assert.Equal(t, []float64{200, 201, 202, 205, 210}, u.Stock.History, sym)
		assert.Equal(t, sym, u.Stock.Name)
	}
}
