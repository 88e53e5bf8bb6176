// Package store defines the persistence interface for computed wallet
// metrics. Implementations include PostgreSQL (source of truth), SQLite
// (single node), Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/ranking-engine/internal/model"
)

// ErrEmptyWallet is returned when metrics without a wallet are written.
var ErrEmptyWallet = errors.New("store: metrics without wallet address")

// Store persists the latest WalletMetrics per wallet. A write replaces the
// previous record as a whole.
type Store interface {
	// GetCachedMetrics returns the stored metrics and whether any exist.
	GetCachedMetrics(ctx context.Context, wallet string) (model.WalletMetrics, bool, error)

	// PutMetrics stores metrics keyed by m.Wallet.
	PutMetrics(ctx context.Context, m model.WalletMetrics) error

	// ListWallets returns every wallet with stored metrics, sorted.
	ListWallets(ctx context.Context) ([]string, error)
}
