package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a single purchase lot. It is never mutated in place; a change
// in share count or price basis is modelled as replacement.
type Holding struct {
	ID            string    `json:"id" msgpack:"id"`
	Stock         Stock     `json:"stock" msgpack:"stock"`
	Shares        int64     `json:"shares" msgpack:"shares"`
	PurchasePrice float64   `json:"purchase_price" msgpack:"purchase_price"`
	PurchaseDate  time.Time `json:"purchase_date" msgpack:"purchase_date"`
}

// CurrentValue is shares × instrument price.
func (h *Holding) CurrentValue() decimal.Decimal {
	return decimal.NewFromInt(h.Shares).Mul(decimal.NewFromFloat(h.Stock.Price))
}

// CostBasis is shares × purchase price.
func (h *Holding) CostBasis() decimal.Decimal {
	return decimal.NewFromInt(h.Shares).Mul(decimal.NewFromFloat(h.PurchasePrice))
}

// GainLoss is current value minus cost basis.
func (h *Holding) GainLoss() decimal.Decimal {
	return h.CurrentValue().Sub(h.CostBasis())
}

// GainLossPercent is (price − purchasePrice) / purchasePrice × 100.
func (h *Holding) GainLossPercent() float64 {
	if h.PurchasePrice == 0 {
		return 0
	}
	return (h.Stock.Price - h.PurchasePrice) / h.PurchasePrice * 100
}
