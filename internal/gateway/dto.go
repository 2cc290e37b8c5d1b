package gateway

import (
	"time"

	"aurelius-engine/internal/model"
	"aurelius-engine/internal/portfolio"
)

// IndicatorPoint is the payload on an indicator WS channel.
type IndicatorPoint struct {
	Value float64   `json:"value"`
	TS    time.Time `json:"ts"`
	Ready bool      `json:"ready"`
}

// PortfolioResponse is the body of GET /api/portfolio.
type PortfolioResponse struct {
	Summary  portfolio.Summary `json:"summary"`
	Holdings []model.Holding   `json:"holdings"`
}

// AddHoldingRequest is the body of POST /api/holdings. PurchaseDate
// defaults to now.
type AddHoldingRequest struct {
	Symbol        string    `json:"symbol"`
	Shares        int64     `json:"shares"`
	PurchasePrice float64   `json:"purchase_price"`
	PurchaseDate  time.Time `json:"purchase_date"`
}

// SymbolRequest is the body of POST /api/watchlist.
type SymbolRequest struct {
	Symbol string `json:"symbol"`
}

// ActiveRequest is the body of POST /api/alerts/{id}/active.
type ActiveRequest struct {
	Active bool `json:"active"`
}

// AlertView is a custom alert with its evaluator state rendered.
type AlertView struct {
	model.CustomAlert
	StateName string `json:"state_name"`
}

// IndicatorResponse is the body of GET /api/indicators/{symbol}.
type IndicatorResponse struct {
	Symbol     string                  `json:"symbol"`
	TF         model.Timeframe         `json:"tf"`
	Prices     []float64               `json:"prices"`
	Indicators []model.IndicatorResult `json:"indicators"`
}

// StockResponse is the body of GET /api/stocks/{symbol}.
type StockResponse struct {
	Stock       model.Stock             `json:"stock"`
	Indicators  []model.IndicatorResult `json:"indicators,omitempty"`
	Watchlisted bool                    `json:"watchlisted"`
}

// IDResponse carries the identifier of a created resource.
type IDResponse struct {
	ID string `json:"id"`
}
