package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurelius-engine/internal/model"
	"aurelius-engine/internal/portfolio"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "nested", "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_EmptyLoads(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, ok, err := s.LoadPortfolio(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.LoadAlerts(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PortfolioRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	bought := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	st := portfolio.State{
		Holdings: []model.Holding{{
			ID:            "h1",
			Stock:         model.Stock{ID: "AAPL", Symbol: "AAPL", Name: "Apple Inc.", Price: 185.92, PercentChange: 1.25},
			Shares:        10,
			PurchasePrice: 175.50,
			PurchaseDate:  bought,
		}},
		Watchlist: []model.Stock{{ID: "GOOGL", Symbol: "GOOGL", Price: 142.25}},
	}
	require.NoError(t, s.SavePortfolio(ctx, st))

	// Overwrite keeps a single row.
	st.Holdings[0].Shares = 12
	require.NoError(t, s.SavePortfolio(ctx, st))

	got, ok, err := s.LoadPortfolio(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Holdings, 1)
	h := got.Holdings[0]
	assert.Equal(t, "h1", h.ID)
	assert.Equal(t, int64(12), h.Shares)
	assert.Equal(t, 175.50, h.PurchasePrice)
	assert.Equal(t, 185.92, h.Stock.Price)
	assert.True(t, bought.Equal(h.PurchaseDate))
	require.Len(t, got.Watchlist, 1)
	assert.Equal(t, "GOOGL", got.Watchlist[0].Key())

	// The restored state is accepted by a ledger.
	l := portfolio.New()
	require.NoError(t, l.Restore(got))
	assert.Equal(t, "2231.04", l.Valuation().String())
}

func TestStore_AlertsRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	alerts := []model.CustomAlert{
		{ID: "a1", Symbol: "TSLA", Kind: model.AlertPrice, Condition: model.Above, Threshold: 200, Active: true, State: model.Triggered},
		{ID: "a2", Symbol: "META", Kind: model.AlertPercentChange, Condition: model.Below, Threshold: 1.5},
	}
	require.NoError(t, s.SaveAlerts(ctx, alerts))

	got, ok, err := s.LoadAlerts(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, alerts, got)

	require.NoError(t, s.SaveAlerts(ctx, nil))
	got, ok, err = s.LoadAlerts(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestStore_PriceHistory(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

	var quotes []model.Quote
	for i := 0; i < 10; i++ {
		quotes = append(quotes, model.Quote{Symbol: "NVDA", Price: 470 + float64(i), TS: base.Add(time.Duration(i) * time.Second)})
	}
	quotes = append(quotes, model.Quote{Symbol: "AAPL", Price: 185.92, TS: base})
	require.NoError(t, s.AppendPrices(ctx, quotes))

	h, err := s.History(ctx, "NVDA", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{476, 477, 478, 479}, h)

	h, err = s.History(ctx, "NVDA", 100)
	require.NoError(t, err)
	assert.Len(t, h, 10)

	h, err = s.History(ctx, "MSFT", 10)
	require.NoError(t, err)
	assert.Empty(t, h)

	last, err := s.LastTimestamp(ctx, "NVDA")
	require.NoError(t, err)
	assert.True(t, base.Add(9*time.Second).Equal(last))

	none, err := s.LastTimestamp(ctx, "MSFT")
	require.NoError(t, err)
	assert.True(t, none.IsZero())

	n, err := s.PruneBefore(ctx, base.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n) // NVDA 0..4 and AAPL
}

func TestStore_RunFlushesOnClose(t *testing.T) {
	s := openTest(t)
	ch := make(chan model.Quote, 10)
	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), ch)
		close(done)
	}()

	ch <- model.Quote{Symbol: "WMT", Price: 58.78, TS: time.Unix(1700000000, 0)}
	ch <- model.Quote{Symbol: "WMT", Price: 59.01, TS: time.Unix(1700000001, 0)}
	close(ch)
	<-done

	h, err := s.History(context.Background(), "WMT", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{58.78, 59.01}, h)
}
