package portfolio

import "aurelius-engine/internal/model"

// AddToWatchlist adds stock if its identifier is not already present.
// Adding an existing identifier is a no-op. Returns true if added.
func (l *Ledger) AddToWatchlist(stock model.Stock) bool {
	key := stock.Key()
	l.mu.Lock()
	for _, s := range l.watchlist {
		if s.Key() == key {
			l.mu.Unlock()
			return false
		}
	}
	next := make([]model.Stock, len(l.watchlist), len(l.watchlist)+1)
	copy(next, l.watchlist)
	l.watchlist = append(next, stock)
	l.mu.Unlock()

	l.notify(Change{Kind: WatchlistAdded, ID: key})
	return true
}

// RemoveFromWatchlist removes id if present. Removing an absent identifier
// is a no-op. Returns true if removed.
func (l *Ledger) RemoveFromWatchlist(id string) bool {
	l.mu.Lock()
	idx := -1
	for i, s := range l.watchlist {
		if s.Key() == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		l.mu.Unlock()
		return false
	}
	next := make([]model.Stock, 0, len(l.watchlist)-1)
	next = append(next, l.watchlist[:idx]...)
	next = append(next, l.watchlist[idx+1:]...)
	l.watchlist = next
	l.mu.Unlock()

	l.notify(Change{Kind: WatchlistRemoved, ID: id})
	return true
}

// IsWatchlisted reports whether id is on the watchlist.
func (l *Ledger) IsWatchlisted(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.watchlist {
		if s.Key() == id {
			return true
		}
	}
	return false
}

// Watchlist returns a snapshot of the watchlist in insertion order.
func (l *Ledger) Watchlist() []model.Stock {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]model.Stock, len(l.watchlist))
	copy(cp, l.watchlist)
	return cp
}
