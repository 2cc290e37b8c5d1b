// Package portfolio owns holdings and watchlist membership and computes
// valuation, gain/loss and aggregate metrics.
//
// A Ledger is the single owner of its Portfolio: every mutation goes through
// its methods, and readers never observe a holding list mid-mutation.
package portfolio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"aurelius-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// ChangeKind names a ledger mutation.
type ChangeKind string

const (
	HoldingAdded      ChangeKind = "holding_added"
	HoldingRemoved    ChangeKind = "holding_removed"
	WatchlistAdded    ChangeKind = "watchlist_added"
	WatchlistRemoved  ChangeKind = "watchlist_removed"
	QuotesRefreshed   ChangeKind = "quotes_refreshed"
	PortfolioRestored ChangeKind = "restored"
)

// Change describes a completed mutation. ID is a holding ID or a symbol.
type Change struct {
	Kind ChangeKind `json:"kind"`
	ID   string     `json:"id"`
}

// State is the persisted shape of a portfolio.
type State struct {
	Holdings  []model.Holding `json:"holdings" msgpack:"holdings"`
	Watchlist []model.Stock   `json:"watchlist" msgpack:"watchlist"`
}

// Ledger tracks holdings and the watchlist.
type Ledger struct {
	mu        sync.RWMutex
	holdings  []model.Holding
	watchlist []model.Stock // insertion order, unique by Key()

	// OnChange is called after every successful mutation, outside the lock.
	OnChange func(Change)

	newID func() string
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{
		holdings: make([]model.Holding, 0, 16),
		newID:    func() string { return uuid.NewString() },
	}
}

func (l *Ledger) notify(c Change) {
	if l.OnChange != nil {
		l.OnChange(c)
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// AddHolding appends a new purchase lot and returns its identifier.
// Repeated purchases of the same instrument create independent holdings.
func (l *Ledger) AddHolding(stock model.Stock, shares int64, purchasePrice float64, purchaseDate time.Time) (string, error) {
	if shares <= 0 {
		return "", fmt.Errorf("portfolio: add holding: shares %d: %w", shares, model.ErrInvalidHolding)
	}
	if !positive(purchasePrice) {
		return "", fmt.Errorf("portfolio: add holding: purchase price %v: %w", purchasePrice, model.ErrInvalidHolding)
	}
	if err := stock.Validate(); err != nil {
		return "", fmt.Errorf("portfolio: add holding: %w (%v)", model.ErrInvalidHolding, err)
	}

	h := model.Holding{
		ID:            l.newID(),
		Stock:         stock,
		Shares:        shares,
		PurchasePrice: purchasePrice,
		PurchaseDate:  purchaseDate,
	}

	l.mu.Lock()
	l.holdings = append(l.holdings, h)
	l.mu.Unlock()

	l.notify(Change{Kind: HoldingAdded, ID: h.ID})
	return h.ID, nil
}

// RemoveHolding removes a holding. Removing an absent ID fails.
func (l *Ledger) RemoveHolding(id string) error {
	l.mu.Lock()
	idx := -1
	for i := range l.holdings {
		if l.holdings[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		l.mu.Unlock()
		return fmt.Errorf("portfolio: remove holding %q: %w", id, model.ErrNotFound)
	}
	// Copy so earlier snapshots keep their backing array.
	next := make([]model.Holding, 0, len(l.holdings)-1)
	next = append(next, l.holdings[:idx]...)
	next = append(next, l.holdings[idx+1:]...)
	l.holdings = next
	l.mu.Unlock()

	l.notify(Change{Kind: HoldingRemoved, ID: id})
	return nil
}

// Holding looks up a holding by ID.
func (l *Ledger) Holding(id string) (model.Holding, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.holdings {
		if h.ID == id {
			return h, nil
		}
	}
	return model.Holding{}, fmt.Errorf("portfolio: holding %q: %w", id, model.ErrNotFound)
}

// Holdings returns a snapshot of all holdings in insertion order.
func (l *Ledger) Holdings() []model.Holding {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]model.Holding, len(l.holdings))
	copy(cp, l.holdings)
	return cp
}

// Symbols returns the distinct instrument keys referenced by holdings and
// the watchlist.
func (l *Ledger) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool, len(l.holdings)+len(l.watchlist))
	out := make([]string, 0, len(seen))
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, h := range l.holdings {
		add(h.Stock.Key())
	}
	for _, s := range l.watchlist {
		add(s.Key())
	}
	return out
}

// UpdateQuote replaces the instrument snapshot of every holding and
// watchlist entry keyed like stock. Returns the number of entries touched.
func (l *Ledger) UpdateQuote(stock model.Stock) int {
	key := stock.Key()
	touched := 0

	l.mu.Lock()
	// Replace the slices rather than writing through them so snapshots
	// handed out earlier stay intact.
	holdings := make([]model.Holding, len(l.holdings))
	copy(holdings, l.holdings)
	for i := range holdings {
		if holdings[i].Stock.Key() == key {
			holdings[i].Stock = stock
			touched++
		}
	}
	watch := make([]model.Stock, len(l.watchlist))
	copy(watch, l.watchlist)
	for i := range watch {
		if watch[i].Key() == key {
			watch[i] = stock
			touched++
		}
	}
	if touched > 0 {
		l.holdings = holdings
		l.watchlist = watch
	}
	l.mu.Unlock()

	if touched > 0 {
		l.notify(Change{Kind: QuotesRefreshed, ID: key})
	}
	return touched
}

// State returns a copy of the ledger for persistence.
func (l *Ledger) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := State{
		Holdings:  make([]model.Holding, len(l.holdings)),
		Watchlist: make([]model.Stock, len(l.watchlist)),
	}
	copy(st.Holdings, l.holdings)
	copy(st.Watchlist, l.watchlist)
	return st
}

// Restore replaces the ledger contents with st. Every holding is validated
// first; on error the ledger is left unchanged. Duplicate watchlist entries
// collapse to the first occurrence.
func (l *Ledger) Restore(st State) error {
	holdings := make([]model.Holding, 0, len(st.Holdings))
	ids := make(map[string]bool, len(st.Holdings))
	for _, h := range st.Holdings {
		if h.Shares <= 0 || !positive(h.PurchasePrice) {
			return fmt.Errorf("portfolio: restore holding %q: %w", h.ID, model.ErrInvalidHolding)
		}
		if h.ID == "" || ids[h.ID] {
			return fmt.Errorf("portfolio: restore holding %q: duplicate or empty id: %w", h.ID, model.ErrInvalidHolding)
		}
		ids[h.ID] = true
		holdings = append(holdings, h)
	}

	watch := make([]model.Stock, 0, len(st.Watchlist))
	seen := make(map[string]bool, len(st.Watchlist))
	for _, s := range st.Watchlist {
		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true
		watch = append(watch, s)
	}

	l.mu.Lock()
	l.holdings = holdings
	l.watchlist = watch
	l.mu.Unlock()

	l.notify(Change{Kind: PortfolioRestored})
	return nil
}
