package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/wallet"
)

// Schema is the DDL for the wallet_metrics table. Summary columns are
// NUMERIC for exact decimal precision and queryable without decoding the
// JSONB payload.
const Schema = `
CREATE TABLE IF NOT EXISTS wallet_metrics (
	wallet       TEXT PRIMARY KEY,
	total_pnl    NUMERIC NOT NULL,
	roi          NUMERIC NOT NULL,
	win_rate     NUMERIC NOT NULL,
	final_score  DOUBLE PRECISION NOT NULL,
	total_trades INTEGER NOT NULL,
	partial      BOOLEAN NOT NULL,
	payload      JSONB NOT NULL,
	computed_at  TIMESTAMPTZ NOT NULL
)`

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the wallet_metrics table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) GetCachedMetrics(ctx context.Context, addr string) (model.WalletMetrics, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM wallet_metrics WHERE wallet = $1`,
		wallet.Normalize(addr)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WalletMetrics{}, false, nil
	}
	if err != nil {
		return model.WalletMetrics{}, false, fmt.Errorf("get metrics %s: %w", addr, err)
	}

	var m model.WalletMetrics
	if err := json.Unmarshal(payload, &m); err != nil {
		return model.WalletMetrics{}, false, fmt.Errorf("decode metrics %s: %w", addr, err)
	}
	return m, true, nil
}

func (s *PostgresStore) PutMetrics(ctx context.Context, m model.WalletMetrics) error {
	key := wallet.Normalize(m.Wallet)
	if key == "" {
		return ErrEmptyWallet
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metrics %s: %w", key, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO wallet_metrics (wallet, total_pnl, roi, win_rate, final_score, total_trades, partial, payload, computed_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5, $6, $7, $8, $9)
		 ON CONFLICT (wallet) DO UPDATE SET
		     total_pnl = EXCLUDED.total_pnl, roi = EXCLUDED.roi, win_rate = EXCLUDED.win_rate,
		     final_score = EXCLUDED.final_score, total_trades = EXCLUDED.total_trades,
		     partial = EXCLUDED.partial, payload = EXCLUDED.payload, computed_at = EXCLUDED.computed_at`,
		key, m.TotalPnL.String(), m.ROI.String(), m.WinRate.String(),
		m.FinalScore, m.TotalTrades, m.Partial, payload, m.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("put metrics %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) ListWallets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT wallet FROM wallet_metrics ORDER BY wallet`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWallets(rows)
}

// pgxRows is the subset of pgx.Rows (and *sql.Rows) used by scanWallets.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanWallets(rows pgxRows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
