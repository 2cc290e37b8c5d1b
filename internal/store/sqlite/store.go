// Package sqlite persists the portfolio, alert definitions and observed
// prices. Portfolio and alerts are stored as opaque msgpack blobs; prices go
// to a price_history table that backs the resampling sampler.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"

	"aurelius-engine/internal/model"
	"aurelius-engine/internal/portfolio"
)

const (
	keyPortfolio = "portfolio"
	keyAlerts    = "alerts"
)

// Config configures the store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/aurelius.db"
}

// Store is a SQLite-backed persistence collaborator. Writes go through a
// single connection.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (creating if needed) the database with WAL mode and schema.
func New(cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	log := slog.Default().With("component", "sqlite")
	log.Info("opened database", "path", cfg.DBPath)
	return &Store{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS blobs (
			key        TEXT    PRIMARY KEY,
			data       BLOB    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS price_history (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			price  REAL    NOT NULL,
			volume REAL,
			PRIMARY KEY (symbol, ts)
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePortfolio stores the ledger state.
func (s *Store) SavePortfolio(ctx context.Context, st portfolio.State) error {
	return s.saveBlob(ctx, keyPortfolio, st)
}

// LoadPortfolio returns the saved ledger state. ok is false when nothing
// has been saved yet.
func (s *Store) LoadPortfolio(ctx context.Context) (st portfolio.State, ok bool, err error) {
	ok, err = s.loadBlob(ctx, keyPortfolio, &st)
	return st, ok, err
}

// SaveAlerts stores the alert definitions including their edge state.
func (s *Store) SaveAlerts(ctx context.Context, alerts []model.CustomAlert) error {
	if alerts == nil {
		alerts = []model.CustomAlert{}
	}
	return s.saveBlob(ctx, keyAlerts, alerts)
}

// LoadAlerts returns the saved alerts. ok is false when nothing has been
// saved yet.
func (s *Store) LoadAlerts(ctx context.Context) (alerts []model.CustomAlert, ok bool, err error) {
	ok, err = s.loadBlob(ctx, keyAlerts, &alerts)
	return alerts, ok, err
}

func (s *Store) saveBlob(ctx context.Context, key string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blobs (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite: save %s: %w", key, err)
	}
	return nil
}

func (s *Store) loadBlob(ctx context.Context, key string, v any) (bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: load %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("sqlite: decode %s: %w", key, err)
	}
	return true, nil
}
