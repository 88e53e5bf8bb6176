package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/provider"
)

// marketLookups bounds concurrent market lookups for one wallet.
const marketLookups = 4

// resolver looks up market metadata for one request. Concurrent lookups
// of the same market share one provider call and results are memoized
// for the lifetime of the request.
type resolver struct {
	provider provider.Provider
	logger   *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]model.MarketMeta
}

func newResolver(p provider.Provider, logger *slog.Logger) *resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &resolver{
		provider: p,
		logger:   logger,
		memo:     make(map[string]model.MarketMeta),
	}
}

// markets returns metadata for every id. Lookup failures other than
// cancellation leave the market unresolved and uncategorized.
func (r *resolver) markets(ctx context.Context, ids []string) (map[string]model.MarketMeta, error) {
	metas := make([]model.MarketMeta, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(marketLookups)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			m, err := r.market(gctx, id)
			if err != nil {
				return err
			}
			metas[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]model.MarketMeta, len(ids))
	for i, id := range ids {
		out[id] = metas[i]
	}
	return out, nil
}

func (r *resolver) market(ctx context.Context, id string) (model.MarketMeta, error) {
	r.mu.Lock()
	m, ok := r.memo[id]
	r.mu.Unlock()
	if ok {
		return m, nil
	}

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		m, err := r.fetch(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, provider.ErrMarketNotFound) {
				r.logger.Warn("market lookup failed, treating as unresolved", "market", id, "error", err)
			}
			m = model.MarketMeta{ID: id}
		}
		r.mu.Lock()
		r.memo[id] = m
		r.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return model.MarketMeta{}, err
	}
	return v.(model.MarketMeta), nil
}

func (r *resolver) fetch(ctx context.Context, id string) (model.MarketMeta, error) {
	if cat, ok := r.provider.(provider.MarketCatalog); ok {
		return cat.FetchMarket(ctx, id)
	}
	res, err := r.provider.FetchMarketResolution(ctx, id)
	if err != nil {
		return model.MarketMeta{}, err
	}
	return model.MarketMeta{ID: id, Resolution: res}, nil
}
