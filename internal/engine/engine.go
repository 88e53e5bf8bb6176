// Package engine wires the provider, the scoring pipeline and the store
// into the operations exposed to the API and the CLI: evaluating a wallet,
// ranking a leaderboard and aggregating categories.
//
// All monetary values use shopspring/decimal, never float64 for money.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atmx/ranking-engine/internal/category"
	"github.com/atmx/ranking-engine/internal/leaderboard"
	"github.com/atmx/ranking-engine/internal/metrics"
	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/normalize"
	"github.com/atmx/ranking-engine/internal/provider"
	"github.com/atmx/ranking-engine/internal/scoring"
	"github.com/atmx/ranking-engine/internal/store"
	"github.com/atmx/ranking-engine/internal/wallet"
)

// DefaultConcurrency bounds parallel wallet evaluations per request.
const DefaultConcurrency = 8

// Engine evaluates and ranks wallets. It holds no mutable state between
// requests; the store is the only persistence.
type Engine struct {
	provider    provider.Provider
	store       store.Store // optional
	cfg         scoring.Config
	now         func() time.Time
	concurrency int
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists evaluated metrics. Without a store every read
// recomputes.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithConfig replaces the default scoring config.
func WithConfig(cfg scoring.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithClock sets the evaluation time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConcurrency bounds parallel wallet evaluations.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over the given provider.
func New(p provider.Provider, opts ...Option) (*Engine, error) {
	e := &Engine{
		provider:    p,
		cfg:         scoring.DefaultConfig(),
		now:         func() time.Time { return time.Now().UTC() },
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.provider == nil {
		return nil, errors.New("engine: nil provider")
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	return e, nil
}

// Config returns the scoring config in use.
func (e *Engine) Config() scoring.Config { return e.cfg }

// ComputeWalletMetrics scores already fetched records at the current time.
func (e *Engine) ComputeWalletMetrics(addr string, recs model.WalletRecords) model.WalletMetrics {
	return ComputeWalletMetrics(addr, recs, e.cfg, e.now())
}

// Evaluate fetches a wallet's records, computes all-time metrics and
// stores them, which adds the wallet to the tracked set. A wallet with
// neither trades nor positions is not stored. Upstream failures are
// returned wrapped in provider.ErrUpstreamUnavailable.
func (e *Engine) Evaluate(ctx context.Context, raw string) (model.WalletMetrics, error) {
	addr, err := wallet.ParseAddress(raw)
	if err != nil {
		return model.WalletMetrics{}, err
	}
	m, err := e.evaluate(ctx, addr)
	if err != nil {
		return model.WalletMetrics{}, err
	}
	e.persist(ctx, m)
	return m, nil
}

// Metrics returns stored metrics when present and computes them otherwise.
// With refresh set the stored copy is recomputed. Reads never add a wallet
// to the tracked set; a refresh of a tracked wallet updates its stored
// metrics.
func (e *Engine) Metrics(ctx context.Context, raw string, refresh bool) (model.WalletMetrics, error) {
	addr, err := wallet.ParseAddress(raw)
	if err != nil {
		return model.WalletMetrics{}, err
	}

	tracked := false
	if e.store != nil {
		m, ok, err := e.store.GetCachedMetrics(ctx, addr)
		switch {
		case err != nil:
			e.logger.Warn("read stored metrics failed", "wallet", addr, "error", err)
		case ok && !refresh:
			return m, nil
		case ok:
			tracked = true
		}
	}

	m, err := e.evaluate(ctx, addr)
	if err != nil {
		return model.WalletMetrics{}, err
	}
	if tracked {
		e.persist(ctx, m)
	}
	return m, nil
}

// evaluate fetches and scores a wallet without touching the store.
func (e *Engine) evaluate(ctx context.Context, addr string) (model.WalletMetrics, error) {
	start := time.Now()
	recs, err := e.fetchRecords(ctx, addr, newResolver(e.provider, e.logger))
	if err != nil {
		metrics.WalletEvaluations.WithLabelValues("error").Inc()
		return model.WalletMetrics{}, fmt.Errorf("evaluate %s: %w", addr, err)
	}

	m := e.ComputeWalletMetrics(addr, recs)
	metrics.EvaluationLatency.Observe(time.Since(start).Seconds())
	e.observe(m)

	e.logger.Info("wallet evaluated",
		"wallet", wallet.Short(addr),
		"total_pnl", m.TotalPnL.StringFixed(2),
		"roi", m.ROI.StringFixed(2),
		"final_score", m.FinalScore,
		"trades", m.TotalTrades,
		"partial", m.Partial,
	)
	return m, nil
}

func (e *Engine) persist(ctx context.Context, m model.WalletMetrics) {
	if e.store == nil || !HasRecords(m) {
		return
	}
	if err := e.store.PutMetrics(ctx, m); err != nil {
		e.logger.Warn("store metrics failed", "wallet", m.Wallet, "error", err)
	}
}

// HasRecords reports whether the metrics were computed from at least one
// trade or position.
func HasRecords(m model.WalletMetrics) bool {
	return m.TotalTrades > 0 || m.TotalPositions > 0
}

// TrackedWallets lists wallets with stored metrics; empty without a store.
func (e *Engine) TrackedWallets(ctx context.Context) ([]string, error) {
	if e.store == nil {
		return []string{}, nil
	}
	return e.store.ListWallets(ctx)
}

// RankLeaderboard evaluates every candidate over the window and ranks them
// by metric. Candidates whose records cannot be fetched are skipped and
// listed in SkippedWallets. Cancellation of ctx aborts the whole ranking.
func (e *Engine) RankLeaderboard(ctx context.Context, candidates []string, metric leaderboard.Metric, window leaderboard.Window, limit int) (model.Leaderboard, error) {
	addrs, err := wallet.ParseList(candidates)
	if err != nil {
		return model.Leaderboard{}, err
	}

	start := time.Now()
	now := e.now()
	res := newResolver(e.provider, e.logger)

	results := make([]model.WalletMetrics, len(addrs))
	fetched := make([]bool, len(addrs))
	var (
		mu      sync.Mutex
		skipped []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			recs, err := e.fetchRecords(gctx, addr, res)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Warn("leaderboard candidate skipped", "wallet", addr, "error", err)
				mu.Lock()
				skipped = append(skipped, addr)
				mu.Unlock()
				return nil
			}
			results[i] = ComputeWalletMetrics(addr, leaderboard.FilterRecords(recs, window, now), e.cfg, now)
			fetched[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Leaderboard{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Leaderboard{}, err
	}

	wallets := make([]model.WalletMetrics, 0, len(addrs))
	for i, ok := range fetched {
		if ok {
			wallets = append(wallets, results[i])
		}
	}
	entries := leaderboard.Rank(wallets, metric, limit)
	sort.Strings(skipped)

	metrics.LeaderboardRequests.WithLabelValues(string(metric), string(window)).Inc()
	metrics.LeaderboardLatency.WithLabelValues(string(metric)).Observe(time.Since(start).Seconds())
	metrics.LeaderboardSkippedWallets.Add(float64(len(skipped)))

	return model.Leaderboard{
		Period:         string(window),
		Metric:         string(metric),
		Count:          len(entries),
		Entries:        entries,
		Partial:        len(skipped) > 0,
		SkippedWallets: skipped,
		GeneratedAt:    now,
	}, nil
}

// AggregateByCategory returns a wallet's all-time category sub-metrics,
// largest categories first.
func (e *Engine) AggregateByCategory(ctx context.Context, raw string) ([]model.CategoryMetrics, error) {
	addr, err := wallet.ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	recs, err := e.fetchRecords(ctx, addr, newResolver(e.provider, e.logger))
	if err != nil {
		return nil, fmt.Errorf("categories %s: %w", addr, err)
	}
	batch := normalize.Normalize(addr, recs)
	return category.Sorted(category.Aggregate(addr, batch.Trades, mergeMarkets(recs))), nil
}

// fetchRecords loads the three record streams concurrently, then looks
// up the markets the trades touch.
func (e *Engine) fetchRecords(ctx context.Context, addr string, res *resolver) (model.WalletRecords, error) {
	var recs model.WalletRecords

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recs.Trades, err = e.provider.FetchTrades(gctx, addr)
		return err
	})
	g.Go(func() error {
		var err error
		recs.Positions, err = e.provider.FetchPositions(gctx, addr)
		return err
	})
	g.Go(func() error {
		var err error
		recs.Activities, err = e.provider.FetchActivities(gctx, addr)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.WalletRecords{}, err
	}

	markets, err := res.markets(ctx, marketIDs(recs.Trades))
	if err != nil {
		return model.WalletRecords{}, err
	}
	recs.Markets = markets
	recs.Resolutions = category.Resolutions(markets)
	return recs, nil
}

func (e *Engine) observe(m model.WalletMetrics) {
	outcome := "ok"
	if m.Partial {
		outcome = "partial"
	}
	metrics.WalletEvaluations.WithLabelValues(outcome).Inc()
	if m.MalformedRecords > 0 {
		metrics.MalformedRecords.WithLabelValues("trade").Add(float64(m.MalformedRecords))
	}
}

// marketIDs returns the distinct, non-empty market ids of the trades in
// first-seen order.
func marketIDs(trades []model.RawTrade) []string {
	seen := make(map[string]bool, len(trades))
	var out []string
	for _, t := range trades {
		id := strings.TrimSpace(t.MarketID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
