package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/wallet"
)

// PostgresProvider implements Provider and MarketCatalog over tables filled
// by an ingester. Numeric columns are NUMERIC and read back as text.
//
//	trades(wallet, market_id, side, outcome, shares, price, pnl, ts, seq, name, pseudonym, profile_image)
//	positions(wallet, market_id, initial_value, current_value, cash_pnl, realized_pnl, updated_at)
//	activities(wallet, kind, amount, ts)
//	markets(id, category, winner)
type PostgresProvider struct {
	pool *pgxpool.Pool
}

// NewPostgresProvider creates a provider backed by the given pool.
func NewPostgresProvider(pool *pgxpool.Pool) *PostgresProvider {
	return &PostgresProvider{pool: pool}
}

func (p *PostgresProvider) FetchTrades(ctx context.Context, addr string) ([]model.RawTrade, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT wallet, market_id, side, outcome,
		        shares::TEXT, price::TEXT, pnl::TEXT, ts,
		        name, pseudonym, profile_image
		 FROM trades WHERE wallet = $1 ORDER BY seq`, wallet.Normalize(addr))
	if err != nil {
		return nil, upstream("trades", err)
	}
	defer rows.Close()

	var out []model.RawTrade
	for rows.Next() {
		var t model.RawTrade
		var shares, price, pnl *string
		if err := rows.Scan(&t.Wallet, &t.MarketID, &t.Side, &t.Outcome,
			&shares, &price, &pnl, &t.Timestamp,
			&t.Name, &t.Pseudonym, &t.ProfileImage); err != nil {
			return nil, upstream("trades", err)
		}
		t.SharesNormalized = nullableDecimal(shares)
		t.Price = nullableDecimal(price)
		t.PnL = nullableDecimal(pnl)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("trades", err)
	}
	return out, nil
}

func (p *PostgresProvider) FetchPositions(ctx context.Context, addr string) ([]model.RawPosition, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT wallet, market_id, initial_value::TEXT, current_value::TEXT,
		        cash_pnl::TEXT, realized_pnl::TEXT, updated_at
		 FROM positions WHERE wallet = $1 ORDER BY market_id`, wallet.Normalize(addr))
	if err != nil {
		return nil, upstream("positions", err)
	}
	defer rows.Close()

	var out []model.RawPosition
	for rows.Next() {
		var pos model.RawPosition
		var initial, current string
		var cash, realized *string
		var updated *time.Time
		if err := rows.Scan(&pos.Wallet, &pos.MarketID, &initial, &current,
			&cash, &realized, &updated); err != nil {
			return nil, upstream("positions", err)
		}
		pos.InitialValue, _ = decimal.NewFromString(initial)
		pos.CurrentValue, _ = decimal.NewFromString(current)
		pos.CashPnL = nullableDecimal(cash)
		pos.RealizedPnL = nullableDecimal(realized)
		if updated != nil {
			pos.UpdatedAt = *updated
		}
		out = append(out, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("positions", err)
	}
	return out, nil
}

func (p *PostgresProvider) FetchActivities(ctx context.Context, addr string) ([]model.RawActivity, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT wallet, kind, amount::TEXT, ts
		 FROM activities WHERE wallet = $1 ORDER BY ts`, wallet.Normalize(addr))
	if err != nil {
		return nil, upstream("activities", err)
	}
	defer rows.Close()

	var out []model.RawActivity
	for rows.Next() {
		var a model.RawActivity
		var amount string
		if err := rows.Scan(&a.Wallet, &a.Kind, &amount, &a.Timestamp); err != nil {
			return nil, upstream("activities", err)
		}
		a.Amount, _ = decimal.NewFromString(amount)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("activities", err)
	}
	return out, nil
}

func (p *PostgresProvider) FetchMarketResolution(ctx context.Context, marketID string) (model.Resolution, error) {
	m, err := p.FetchMarket(ctx, marketID)
	if err != nil {
		return model.Unresolved, err
	}
	return m.Resolution, nil
}

func (p *PostgresProvider) FetchMarket(ctx context.Context, marketID string) (model.MarketMeta, error) {
	var category, winner string
	err := p.pool.QueryRow(ctx,
		`SELECT COALESCE(category, ''), COALESCE(winner, '')
		 FROM markets WHERE id = $1`, marketID).Scan(&category, &winner)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MarketMeta{}, fmt.Errorf("%w: %s", ErrMarketNotFound, marketID)
	}
	if err != nil {
		return model.MarketMeta{}, upstream("markets", err)
	}
	return model.MarketMeta{
		ID:         marketID,
		Category:   category,
		Resolution: model.ResolvedTo(model.ParseOutcome(winner)),
	}, nil
}

// upstream wraps a database failure, passing context errors through.
func upstream(table string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, table, err)
}

func nullableDecimal(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	v, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &v
}
