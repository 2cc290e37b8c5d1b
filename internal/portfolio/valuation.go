package portfolio

import (
	"github.com/shopspring/decimal"

	"aurelius-engine/internal/model"
)

// Summary is a consistent aggregate view of the ledger.
type Summary struct {
	Value          decimal.Decimal `json:"value"`
	Invested       decimal.Decimal `json:"invested"`
	Gain           decimal.Decimal `json:"gain"`
	GainPercent    float64         `json:"gain_percent"`
	DailyChange    decimal.Decimal `json:"daily_change"`
	HoldingCount   int             `json:"holding_count"`
	WatchlistCount int             `json:"watchlist_count"`
}

// Valuation is Σ shares × price over all holdings; 0 when empty.
func (l *Ledger) Valuation() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return valuation(l.holdings)
}

// DailyChange is Σ percentChange × (shares × price) / 100.
//
// This applies today's percent change to today's value, approximating the
// day-over-day delta; it is not a diff against yesterday's valuation.
func (l *Ledger) DailyChange() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return dailyChange(l.holdings)
}

// TotalGainPercent is (value − invested) / invested × 100, where invested
// is Σ purchasePrice × shares. It is exactly 0 when nothing is invested.
func (l *Ledger) TotalGainPercent() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return gainPercent(valuation(l.holdings), invested(l.holdings))
}

// Summary computes every aggregate under a single read lock.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	value := valuation(l.holdings)
	inv := invested(l.holdings)
	return Summary{
		Value:          value,
		Invested:       inv,
		Gain:           value.Sub(inv),
		GainPercent:    gainPercent(value, inv),
		DailyChange:    dailyChange(l.holdings),
		HoldingCount:   len(l.holdings),
		WatchlistCount: len(l.watchlist),
	}
}

func valuation(holdings []model.Holding) decimal.Decimal {
	total := decimal.Zero
	for i := range holdings {
		total = total.Add(holdings[i].CurrentValue())
	}
	return total
}

func invested(holdings []model.Holding) decimal.Decimal {
	total := decimal.Zero
	for i := range holdings {
		total = total.Add(holdings[i].CostBasis())
	}
	return total
}

func dailyChange(holdings []model.Holding) decimal.Decimal {
	total := decimal.Zero
	for i := range holdings {
		pc := decimal.NewFromFloat(holdings[i].Stock.PercentChange)
		total = total.Add(pc.Mul(holdings[i].CurrentValue()).Div(hundred))
	}
	return total
}

func gainPercent(value, inv decimal.Decimal) float64 {
	if inv.IsZero() {
		return 0
	}
	return value.Sub(inv).Div(inv).Mul(hundred).InexactFloat64()
}
