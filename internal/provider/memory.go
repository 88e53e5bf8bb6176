package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/wallet"
)

// MemoryProvider implements Provider and MarketCatalog with in-memory
// maps. Used for testing and for scoring offline snapshots.
type MemoryProvider struct {
	mu         sync.RWMutex
	trades     map[string][]model.RawTrade
	positions  map[string][]model.RawPosition
	activities map[string][]model.RawActivity
	markets    map[string]model.MarketMeta
	failures   map[string]error
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		trades:     make(map[string][]model.RawTrade),
		positions:  make(map[string][]model.RawPosition),
		activities: make(map[string][]model.RawActivity),
		markets:    make(map[string]model.MarketMeta),
		failures:   make(map[string]error),
	}
}

// Snapshot is the JSON layout accepted by LoadSnapshot.
type Snapshot struct {
	Wallets map[string]model.WalletRecords `json:"wallets"`
	Markets []model.MarketMeta             `json:"markets"`
}

// LoadSnapshot builds a MemoryProvider from a JSON snapshot.
func LoadSnapshot(r io.Reader) (*MemoryProvider, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	p := NewMemoryProvider()
	for addr, recs := range snap.Wallets {
		p.SetRecords(addr, recs)
		for id, res := range recs.Resolutions {
			p.AddMarket(model.MarketMeta{ID: id, Resolution: res})
		}
		for _, m := range recs.Markets {
			p.AddMarket(m)
		}
	}
	for _, m := range snap.Markets {
		p.AddMarket(m)
	}
	return p, nil
}

// SetRecords replaces the trades, positions and activities of a wallet.
func (p *MemoryProvider) SetRecords(addr string, recs model.WalletRecords) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := wallet.Normalize(addr)
	p.trades[key] = append([]model.RawTrade(nil), recs.Trades...)
	p.positions[key] = append([]model.RawPosition(nil), recs.Positions...)
	p.activities[key] = append([]model.RawActivity(nil), recs.Activities...)
}

// AddMarket stores market metadata.
func (p *MemoryProvider) AddMarket(m model.MarketMeta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markets[m.ID] = m
}

// FailWallet makes every fetch for the wallet return err. A nil err
// clears the failure.
func (p *MemoryProvider) FailWallet(addr string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, wallet.Normalize(addr))
		return
	}
	p.failures[wallet.Normalize(addr)] = err
}

// Wallets returns every wallet with records.
func (p *MemoryProvider) Wallets() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.trades))
	for w := range p.trades {
		out = append(out, w)
	}
	return out
}

func (p *MemoryProvider) FetchTrades(ctx context.Context, addr string) ([]model.RawTrade, error) {
	if err := p.check(ctx, addr); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.RawTrade(nil), p.trades[wallet.Normalize(addr)]...), nil
}

func (p *MemoryProvider) FetchPositions(ctx context.Context, addr string) ([]model.RawPosition, error) {
	if err := p.check(ctx, addr); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.RawPosition(nil), p.positions[wallet.Normalize(addr)]...), nil
}

func (p *MemoryProvider) FetchActivities(ctx context.Context, addr string) ([]model.RawActivity, error) {
	if err := p.check(ctx, addr); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.RawActivity(nil), p.activities[wallet.Normalize(addr)]...), nil
}

func (p *MemoryProvider) FetchMarketResolution(ctx context.Context, marketID string) (model.Resolution, error) {
	m, err := p.FetchMarket(ctx, marketID)
	if err != nil {
		return model.Unresolved, err
	}
	return m.Resolution, nil
}

func (p *MemoryProvider) FetchMarket(ctx context.Context, marketID string) (model.MarketMeta, error) {
	if err := ctx.Err(); err != nil {
		return model.MarketMeta{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.markets[marketID]
	if !ok {
		return model.MarketMeta{}, fmt.Errorf("%w: %s", ErrMarketNotFound, marketID)
	}
	return m, nil
}

func (p *MemoryProvider) check(ctx context.Context, addr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err, ok := p.failures[wallet.Normalize(addr)]; ok {
		return err
	}
	return nil
}
