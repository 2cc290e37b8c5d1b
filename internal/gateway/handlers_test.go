package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurelius-engine/internal/alert"
	"aurelius-engine/internal/indicator"
	"aurelius-engine/internal/marketdata"
	"aurelius-engine/internal/model"
	"aurelius-engine/internal/pipeline"
	"aurelius-engine/internal/portfolio"
	"aurelius-engine/internal/sampler"
)

type fixture struct {
	api    *API
	ledger *portfolio.Ledger
	alerts *alert.Evaluator
	srv    *httptest.Server
	saves  atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	eng, err := indicator.NewEngine(indicator.DefaultConfigs())
	require.NoError(t, err)
	ev := alert.NewEvaluator()
	pipe := pipeline.New(pipeline.Config{}, eng, ev, nil)

	live := model.Stock{ID: "AAPL", Symbol: "AAPL", Name: "Apple Inc.", Price: 200, PercentChange: 1}
	require.NoError(t, pipe.Seed(live, []float64{190, 195, 200}))

	f := &fixture{ledger: portfolio.New(), alerts: ev}
	f.api = &API{
		Ledger:          f.ledger,
		Alerts:          ev,
		Pipeline:        pipe,
		Directory:       marketdata.NewCatalog(1),
		Sampler:         sampler.Synthetic{Seed: 7},
		Hub:             NewHub(nil),
		Start:           time.Now(),
		OnAlertsChanged: func() { f.saves.Add(1) },
	}
	f.srv = httptest.NewServer(f.api.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHoldingsLifecycle(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/holdings", AddHoldingRequest{Symbol: "aapl", Shares: 10, PurchasePrice: 150})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode[IDResponse](t, resp).ID
	require.NotEmpty(t, id)

	resp = f.do(t, http.MethodGet, "/api/portfolio", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decode[PortfolioResponse](t, resp)
	require.Len(t, p.Holdings, 1)
	assert.Equal(t, 200.0, p.Holdings[0].Stock.Price, "live snapshot preferred over catalog")
	assert.Equal(t, "2000", p.Summary.Value.String())
	assert.InDelta(t, 33.333, p.Summary.GainPercent, 0.001)

	resp = f.do(t, http.MethodDelete, "/api/holdings/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/holdings/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddHolding_Rejects(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/holdings", AddHoldingRequest{Symbol: "AAPL", Shares: 0, PurchasePrice: 150})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/holdings", AddHoldingRequest{Symbol: "ZZZZ", Shares: 1, PurchasePrice: 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/holdings", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWatchlist(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/watchlist", SymbolRequest{Symbol: "MSFT"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/watchlist", SymbolRequest{Symbol: "MSFT"})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "second add is a no-op")

	resp = f.do(t, http.MethodGet, "/api/watchlist", nil)
	list := decode[[]model.Stock](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "MSFT", list[0].Symbol)

	resp = f.do(t, http.MethodGet, "/api/stocks/MSFT", nil)
	assert.True(t, decode[StockResponse](t, resp).Watchlisted)

	resp = f.do(t, http.MethodDelete, "/api/watchlist/msft", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/watchlist/MSFT", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetStock_LiveSnapshot(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/stocks/AAPL", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s := decode[StockResponse](t, resp)
	assert.Equal(t, 200.0, s.Stock.Price)
	assert.NotEmpty(t, s.Indicators)

	resp = f.do(t, http.MethodGet, "/api/stocks/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetIndicators(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/indicators/AAPL?tf=1M&indicator=RSI&period=14", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ir := decode[IndicatorResponse](t, resp)
	assert.Equal(t, model.TF1M, ir.TF)
	require.Len(t, ir.Prices, 30)
	assert.InDelta(t, 200.0, ir.Prices[29], 1e-9, "series ends at the current price")
	require.Len(t, ir.Indicators, 1)
	assert.Equal(t, "RSI_14", ir.Indicators[0].Name)
	_, ok := ir.Indicators[0].Series.At(13)
	assert.False(t, ok)
	_, ok = ir.Indicators[0].Series.At(14)
	assert.True(t, ok)

	resp = f.do(t, http.MethodGet, "/api/indicators/AAPL", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ir = decode[IndicatorResponse](t, resp)
	assert.Equal(t, model.TF1D, ir.TF)
	assert.Len(t, ir.Prices, 24)
}

func TestGetIndicators_BadInput(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{
		"/api/indicators/AAPL?tf=2D",
		"/api/indicators/AAPL?indicator=STOCH",
		"/api/indicators/AAPL?indicator=SMA&period=0",
		"/api/indicators/AAPL?indicator=SMA&period=x",
	} {
		resp := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/search?q=micro", nil)
	got := decode[[]model.Stock](t, resp)
	require.Len(t, got, 1)
	assert.Equal(t, "MSFT", got[0].Symbol)

	resp = f.do(t, http.MethodGet, "/api/search?q=", nil)
	assert.Empty(t, decode[[]model.Stock](t, resp))
}

func TestAlertsLifecycle(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/alerts", model.CustomAlert{
		Symbol: "tsla", Kind: model.AlertPrice, Condition: model.Above, Threshold: 200, Active: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode[IDResponse](t, resp).ID

	resp = f.do(t, http.MethodGet, "/api/alerts?symbol=TSLA", nil)
	views := decode[[]AlertView](t, resp)
	require.Len(t, views, 1)
	assert.Equal(t, "TSLA", views[0].Symbol)
	assert.Equal(t, model.Armed.String(), views[0].StateName)

	resp = f.do(t, http.MethodPost, "/api/alerts/"+id+"/active", ActiveRequest{Active: false})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, f.alerts.Alerts()[0].Active)

	resp = f.do(t, http.MethodDelete, "/api/alerts/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/alerts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, int32(3), f.saves.Load())

	resp = f.do(t, http.MethodPost, "/api/alerts", model.CustomAlert{Symbol: "TSLA", Kind: "rsi", Condition: model.Above})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndCORS(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	body := decode[map[string]interface{}](t, resp)
	assert.Equal(t, "ok", body["status"])

	resp = f.do(t, http.MethodOptions, "/api/portfolio", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Greater(t, decode[RuntimeStats](t, resp).Goroutines, 0)
}

func TestMissed(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.api.Hub.Broadcaster.Broadcast("quote:AAPL", []byte(`{}`), time.Time{})
	}
	resp := f.do(t, http.MethodGet, "/api/missed?channel=quote:AAPL&from=3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Messages []envelope `json:"messages"`
		Seq      int64      `json:"seq"`
	}](t, resp)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, int64(3), body.Messages[0].ChannelSeq)
	assert.Equal(t, int64(4), body.Seq)

	resp = f.do(t, http.MethodGet, "/api/missed?channel=quote:AAPL", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
