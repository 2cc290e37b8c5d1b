package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aurelius-engine/internal/alert"
	"aurelius-engine/internal/indicator"
	"aurelius-engine/internal/metrics"
	"aurelius-engine/internal/model"
	"aurelius-engine/internal/pipeline"
	"aurelius-engine/internal/portfolio"
	"aurelius-engine/internal/sampler"
)

// Directory resolves and searches instruments.
type Directory interface {
	Lookup(symbol string) (model.Stock, error)
	Search(ctx context.Context, query string) ([]model.Stock, error)
}

// API holds the collaborators behind the REST routes.
type API struct {
	Ledger    *portfolio.Ledger
	Alerts    *alert.Evaluator
	Pipeline  *pipeline.Service
	Directory Directory
	Sampler   sampler.Sampler
	Health    *metrics.HealthStatus
	Hub       *Hub
	Start     time.Time

	// OnAlertsChanged is called after any alert mutation.
	OnAlertsChanged func()
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Handler returns the API routes wrapped with CORS handling.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	if a.Hub != nil {
		mux.HandleFunc("GET /ws", a.Hub.HandleWS)
		mux.HandleFunc("GET /api/latest", a.latest)
		mux.HandleFunc("GET /api/missed", a.missed)
	}

	mux.HandleFunc("GET /api/portfolio", a.getPortfolio)
	mux.HandleFunc("POST /api/holdings", a.addHolding)
	mux.HandleFunc("DELETE /api/holdings/{id}", a.removeHolding)

	mux.HandleFunc("GET /api/watchlist", a.getWatchlist)
	mux.HandleFunc("POST /api/watchlist", a.addWatchlist)
	mux.HandleFunc("DELETE /api/watchlist/{symbol}", a.removeWatchlist)

	mux.HandleFunc("GET /api/stocks/{symbol}", a.getStock)
	mux.HandleFunc("GET /api/indicators/{symbol}", a.getIndicators)
	mux.HandleFunc("GET /api/search", a.search)

	mux.HandleFunc("GET /api/alerts", a.listAlerts)
	mux.HandleFunc("POST /api/alerts", a.addAlert)
	mux.HandleFunc("POST /api/alerts/{id}/active", a.setAlertActive)
	mux.HandleFunc("DELETE /api/alerts/{id}", a.removeAlert)

	mux.HandleFunc("GET /api/v1/health", a.health)
	mux.HandleFunc("GET /api/v1/stats", a.stats)
}

func (a *API) getPortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PortfolioResponse{
		Summary:  a.Ledger.Summary(),
		Holdings: a.Ledger.Holdings(),
	})
}

func (a *API) addHolding(w http.ResponseWriter, r *http.Request) {
	var req AddHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode holding: %v: %w", err, model.ErrInvalidParameter))
		return
	}
	stock, err := a.resolve(req.Symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.PurchaseDate.IsZero() {
		req.PurchaseDate = time.Now().UTC()
	}
	id, err := a.Ledger.AddHolding(stock, req.Shares, req.PurchasePrice, req.PurchaseDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

func (a *API) removeHolding(w http.ResponseWriter, r *http.Request) {
	if err := a.Ledger.RemoveHolding(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getWatchlist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Ledger.Watchlist())
}

func (a *API) addWatchlist(w http.ResponseWriter, r *http.Request) {
	var req SymbolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode watchlist: %v: %w", err, model.ErrInvalidParameter))
		return
	}
	stock, err := a.resolve(req.Symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if a.Ledger.AddToWatchlist(stock) {
		status = http.StatusCreated
	}
	writeJSON(w, status, a.Ledger.Watchlist())
}

func (a *API) removeWatchlist(w http.ResponseWriter, r *http.Request) {
	sym := normalize(r.PathValue("symbol"))
	if !a.Ledger.RemoveFromWatchlist(sym) {
		writeError(w, fmt.Errorf("watchlist %s: %w", sym, model.ErrNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getStock(w http.ResponseWriter, r *http.Request) {
	sym := normalize(r.PathValue("symbol"))
	resp := StockResponse{Watchlisted: a.Ledger.IsWatchlisted(sym)}
	if a.Pipeline != nil {
		if snap, ok := a.Pipeline.Latest(sym); ok {
			resp.Stock, resp.Indicators = snap.Stock, snap.Indicators
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}
	stock, err := a.Directory.Lookup(sym)
	if err != nil {
		writeError(w, err)
		return
	}
	resp.Stock = stock
	writeJSON(w, http.StatusOK, resp)
}

// getIndicators samples the symbol's price path for ?tf= (default 1D) and
// computes ?indicator= (default: the standard set) over it. ?period= and
// ?mult= override the indicator's defaults.
func (a *API) getIndicators(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sym := normalize(r.PathValue("symbol"))

	tf := model.TF1D
	if s := q.Get("tf"); s != "" {
		var err error
		if tf, err = model.ParseTimeframe(s); err != nil {
			writeError(w, err)
			return
		}
	}

	configs, err := indicatorConfigs(q.Get("indicator"), q.Get("period"), q.Get("mult"))
	if err != nil {
		writeError(w, err)
		return
	}
	engine, err := indicator.NewEngine(configs)
	if err != nil {
		writeError(w, err)
		return
	}

	stock, err := a.resolve(sym)
	if err != nil {
		writeError(w, err)
		return
	}
	prices, err := a.Sampler.Sample(r.Context(), stock, tf)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := engine.Compute(sym, tf, prices)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IndicatorResponse{Symbol: sym, TF: tf, Prices: prices, Indicators: results})
}

func indicatorConfigs(label, period, mult string) ([]indicator.IndicatorConfig, error) {
	typ, err := indicator.ParseType(label)
	if err != nil {
		return nil, err
	}
	if typ == "" {
		return indicator.DefaultConfigs(), nil
	}

	cfg := indicator.IndicatorConfig{Type: typ, Period: defaultPeriod(typ)}
	if period != "" {
		n, err := strconv.Atoi(period)
		if err != nil {
			return nil, fmt.Errorf("period %q: %w", period, model.ErrInvalidParameter)
		}
		cfg.Period = n
	}
	if mult != "" {
		m, err := strconv.ParseFloat(mult, 64)
		if err != nil {
			return nil, fmt.Errorf("mult %q: %w", mult, model.ErrInvalidParameter)
		}
		cfg.Multiplier = m
	}
	return []indicator.IndicatorConfig{cfg}, nil
}

func defaultPeriod(typ string) int {
	switch typ {
	case indicator.TypeRSI:
		return 14
	case indicator.TypeMACD:
		return 0
	}
	return 20
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	stocks, err := a.Directory.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	if stocks == nil {
		stocks = []model.Stock{}
	}
	writeJSON(w, http.StatusOK, stocks)
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	var alerts []model.CustomAlert
	if sym := r.URL.Query().Get("symbol"); sym != "" {
		alerts = a.Alerts.ForSymbol(normalize(sym))
	} else {
		alerts = a.Alerts.Alerts()
	}
	views := make([]AlertView, len(alerts))
	for i, al := range alerts {
		views[i] = AlertView{CustomAlert: al, StateName: al.State.String()}
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) addAlert(w http.ResponseWriter, r *http.Request) {
	var req model.CustomAlert
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode alert: %v: %w", err, model.ErrInvalidParameter))
		return
	}
	req.Symbol = normalize(req.Symbol)
	id, err := a.Alerts.Add(req)
	if err != nil {
		writeError(w, err)
		return
	}
	a.alertsChanged()
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

func (a *API) setAlertActive(w http.ResponseWriter, r *http.Request) {
	var req ActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode active: %v: %w", err, model.ErrInvalidParameter))
		return
	}
	if err := a.Alerts.SetActive(r.PathValue("id"), req.Active); err != nil {
		writeError(w, err)
		return
	}
	a.alertsChanged()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeAlert(w http.ResponseWriter, r *http.Request) {
	if err := a.Alerts.Remove(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	a.alertsChanged()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) alertsChanged() {
	if a.OnAlertsChanged != nil {
		a.OnAlertsChanged()
	}
}

func (a *API) latest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Hub.LatestAll())
}

// missed returns buffered envelopes for ?channel= in [?from=, ?to=].
// to defaults to the channel's current sequence.
func (a *API) missed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := q.Get("channel")
	from, err := strconv.ParseInt(q.Get("from"), 10, 64)
	if channel == "" || err != nil {
		writeError(w, fmt.Errorf("channel and from are required: %w", model.ErrInvalidParameter))
		return
	}
	to := a.Hub.ChannelSeq(channel)
	if s := q.Get("to"); s != "" {
		if to, err = strconv.ParseInt(s, 10, 64); err != nil {
			writeError(w, fmt.Errorf("to %q: %w", s, model.ErrInvalidParameter))
			return
		}
	}
	msgs := a.Hub.ReplayRange(channel, from, to)
	out := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channel":  channel,
		"messages": out,
		"seq":      a.Hub.ChannelSeq(channel),
	})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"uptime_sec": int64(time.Since(a.Start).Seconds()),
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
	}
	status := http.StatusOK
	if a.Health != nil {
		rep := a.Health.Report()
		body["status"] = rep.Status
		body["health"] = rep
		if rep.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
	} else {
		body["status"] = "ok"
	}
	if a.Hub != nil {
		body["ws_clients"] = a.Hub.ClientCount()
	}
	writeJSON(w, status, body)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	s := CollectStats(a.Start)
	if a.Hub != nil {
		s.WSClients = a.Hub.ClientCount()
		s.LatencyP50, s.LatencyP95, s.LatencyP99 = a.Hub.Latency.Percentiles()
	}
	writeJSON(w, http.StatusOK, s)
}

// resolve prefers the live pipeline snapshot and falls back to the directory.
func (a *API) resolve(symbol string) (model.Stock, error) {
	sym := normalize(symbol)
	if sym == "" {
		return model.Stock{}, fmt.Errorf("empty symbol: %w", model.ErrInvalidParameter)
	}
	if a.Pipeline != nil {
		if snap, ok := a.Pipeline.Latest(sym); ok {
			return snap.Stock, nil
		}
	}
	return a.Directory.Lookup(sym)
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "component", "gateway", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidHolding),
		errors.Is(err, model.ErrInvalidParameter),
		errors.Is(err, model.ErrUnknownTimeframe):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
