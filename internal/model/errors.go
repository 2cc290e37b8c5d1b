package model

import "errors"

// Error taxonomy shared by the ledger, indicator engine, alert evaluator and
// sampler. Callers match with errors.Is; packages wrap with context.
var (
	// ErrInvalidHolding is returned for non-positive share counts or prices.
	ErrInvalidHolding = errors.New("invalid holding")

	// ErrInvalidParameter is returned for a bad indicator period, multiplier,
	// alert definition or ratings input.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotFound is returned on removal or lookup of an absent identifier.
	ErrNotFound = errors.New("not found")

	// ErrStaleQuote marks a provider that failed to deliver an update.
	// The engine keeps the last known snapshot and flags it stale.
	ErrStaleQuote = errors.New("stale quote")

	// ErrUnknownTimeframe is returned for a timeframe token outside 1D..5Y.
	ErrUnknownTimeframe = errors.New("unknown timeframe")
)
