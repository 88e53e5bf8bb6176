package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/wallet"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS wallet_metrics (
	wallet      TEXT PRIMARY KEY,
	total_pnl   TEXT NOT NULL,
	final_score REAL NOT NULL,
	payload     BLOB NOT NULL,
	computed_at TEXT NOT NULL
)`

// SQLiteStore implements Store in a single SQLite file. Metrics are
// encoded with msgpack.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for
// a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCachedMetrics(ctx context.Context, addr string) (model.WalletMetrics, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM wallet_metrics WHERE wallet = ?`, wallet.Normalize(addr)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WalletMetrics{}, false, nil
	}
	if err != nil {
		return model.WalletMetrics{}, false, fmt.Errorf("get metrics %s: %w", addr, err)
	}

	var m model.WalletMetrics
	if err := msgpack.Unmarshal(payload, &m); err != nil {
		return model.WalletMetrics{}, false, fmt.Errorf("decode metrics %s: %w", addr, err)
	}
	return m, true, nil
}

func (s *SQLiteStore) PutMetrics(ctx context.Context, m model.WalletMetrics) error {
	key := wallet.Normalize(m.Wallet)
	if key == "" {
		return ErrEmptyWallet
	}
	payload, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metrics %s: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO wallet_metrics (wallet, total_pnl, final_score, payload, computed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (wallet) DO UPDATE SET
		     total_pnl = excluded.total_pnl, final_score = excluded.final_score,
		     payload = excluded.payload, computed_at = excluded.computed_at`,
		key, m.TotalPnL.String(), m.FinalScore, payload, m.ComputedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put metrics %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) ListWallets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT wallet FROM wallet_metrics ORDER BY wallet`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWallets(rows)
}
