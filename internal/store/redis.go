package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/wallet"
)

// CachedStore wraps a primary Store with a Redis read-through cache.
// Writes go to the primary store and then refresh the cache; reads check
// Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) PutMetrics(ctx context.Context, m model.WalletMetrics) error {
	if err := s.primary.PutMetrics(ctx, m); err != nil {
		return err
	}
	s.cacheMetrics(ctx, m)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetCachedMetrics(ctx context.Context, addr string) (model.WalletMetrics, bool, error) {
	key := metricsKey(addr)

	// Try cache.
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var m model.WalletMetrics
		if json.Unmarshal(data, &m) == nil {
			return m, true, nil
		}
	}

	// Cache miss: read from primary.
	m, ok, err := s.primary.GetCachedMetrics(ctx, addr)
	if err != nil || !ok {
		return m, ok, err
	}

	s.cacheMetrics(ctx, m)
	return m, true, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListWallets(ctx context.Context) ([]string, error) {
	return s.primary.ListWallets(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMetrics(ctx context.Context, m model.WalletMetrics) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, metricsKey(m.Wallet), data, s.ttl)
	}
}

func metricsKey(addr string) string { return fmt.Sprintf("metrics:%s", wallet.Normalize(addr)) }
