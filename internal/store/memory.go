package store

import (
	"context"
	"sort"
	"sync"

	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/wallet"
)

// MemoryStore implements Store with an in-memory map. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	metrics map[string]model.WalletMetrics
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		metrics: make(map[string]model.WalletMetrics),
	}
}

func (s *MemoryStore) GetCachedMetrics(_ context.Context, addr string) (model.WalletMetrics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.metrics[wallet.Normalize(addr)]
	if !ok {
		return model.WalletMetrics{}, false, nil
	}
	return m.Clone(), true, nil
}

func (s *MemoryStore) PutMetrics(_ context.Context, m model.WalletMetrics) error {
	key := wallet.Normalize(m.Wallet)
	if key == "" {
		return ErrEmptyWallet
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Store a copy to avoid external mutation.
	s.metrics[key] = m.Clone()
	return nil
}

func (s *MemoryStore) ListWallets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.metrics))
	for w := range s.metrics {
		out = append(out, w)
	}
	sort.Strings(out)
	return out, nil
}
