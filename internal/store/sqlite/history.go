package sqlite

import (
	"context"
	"fmt"
	"time"

	"aurelius-engine/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Run reads quotes from quoteCh and inserts them into price_history in
// batched transactions. Flushes every batch of 100 or every 200ms, whichever
// first. Blocks until ctx is cancelled or quoteCh is closed.
func (s *Store) Run(ctx context.Context, quoteCh <-chan model.Quote) {
	batch := make([]model.Quote, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.AppendPrices(context.Background(), batch); err != nil {
			s.log.Error("batch insert failed", "rows", len(batch), "error", err)
		} else {
			s.log.Debug("committed prices", "rows", len(batch), "took", time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case q, ok := <-quoteCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, q)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// AppendPrices inserts quotes in a single transaction. A second quote for the
// same symbol and millisecond replaces the first.
func (s *Store) AppendPrices(ctx context.Context, quotes []model.Quote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO price_history (symbol, ts, price, volume)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		if _, err := stmt.ExecContext(ctx, q.Symbol, q.TS.UnixMilli(), q.Price, q.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: insert %s: %w", q.Symbol, err)
		}
	}
	return tx.Commit()
}

// History returns up to limit most recent prices for symbol, oldest first.
func (s *Store) History(ctx context.Context, symbol string, limit int) ([]float64, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT price FROM price_history
		WHERE symbol = ?
		ORDER BY ts DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query history %s: %w", symbol, err)
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("sqlite: scan history %s: %w", symbol, err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(prices)-1; i < j; i, j = i+1, j-1 {
		prices[i], prices[j] = prices[j], prices[i]
	}
	return prices, nil
}

// LastTimestamp returns the newest stored timestamp for symbol, or the zero
// time if there is none.
func (s *Store) LastTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	var ms *int64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM price_history WHERE symbol = ?`, symbol).Scan(&ms)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: last ts %s: %w", symbol, err)
	}
	if ms == nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(*ms).UTC(), nil
}

// PruneBefore deletes prices older than cutoff and returns the row count.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM price_history WHERE ts < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune: %w", err)
	}
	return res.RowsAffected()
}
