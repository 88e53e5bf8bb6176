package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ranking-engine/internal/leaderboard"
	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/provider"
	"github.com/atmx/ranking-engine/internal/scoring"
	"github.com/atmx/ranking-engine/internal/store"
	"github.com/atmx/ranking-engine/internal/wallet"
)

var (
	now     = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	walletA = "0x" + strings.Repeat("a", 40)
	walletB = "0x" + strings.Repeat("b", 40)
	walletC = "0x" + strings.Repeat("c", 40)
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func dp(f float64) *decimal.Decimal {
	v := d(f)
	return &v
}

func daysAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * 24 * time.Hour)
}

func TestComputeWalletMetrics_WorkedExample(t *testing.T) {
	recs := model.WalletRecords{
		Trades: []model.RawTrade{
			{MarketID: "m1", Side: "buy", SharesNormalized: dp(10), Price: dp(0.5), PnL: dp(5), Timestamp: daysAgo(1), Name: "alpha"},
			{MarketID: "m2", Side: "SELL", SharesNormalized: dp(20), Price: dp(0.25), PnL: dp(-1), Timestamp: daysAgo(10)},
			{MarketID: "m3", Side: "BUY", SharesNormalized: dp(4), Price: dp(0.5), Timestamp: daysAgo(2)},
			{MarketID: "m3", Side: "BUY", Timestamp: daysAgo(2)}, // malformed: no quantity or price
		},
		Positions: []model.RawPosition{
			{MarketID: "m1", InitialValue: d(100), CurrentValue: d(120), CashPnL: dp(25), RealizedPnL: dp(5)},
			{MarketID: "m2", InitialValue: d(50), CurrentValue: d(0), RealizedPnL: dp(-10)},
		},
		Activities: []model.RawActivity{
			{Kind: "reward", Amount: d(3)},
			{Kind: "REDEEM", Amount: d(2)},
		},
		Resolutions: map[string]model.Resolution{
			"m1": model.ResolvedTo(model.OutcomeYes),
			"m2": model.ResolvedTo(model.OutcomeYes),
		},
	}

	m := ComputeWalletMetrics(walletA, recs, scoring.DefaultConfig(), now)

	assert.True(t, m.RealizedPnL.Equal(d(-5)), "realized = %s", m.RealizedPnL)
	assert.True(t, m.UnrealizedPnL.Equal(d(20)), "unrealized = %s", m.UnrealizedPnL)
	assert.True(t, m.TotalPnL.Equal(d(16)), "total = %s", m.TotalPnL)
	assert.True(t, m.PnLPercentage.Sub(d(10.6667)).Abs().LessThan(d(0.001)), "pct = %s", m.PnLPercentage)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 1, m.MalformedRecords)
	assert.Equal(t, 2, m.TotalTradesWithPnL)
	assert.Equal(t, 2, m.DeterminableTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.True(t, m.TotalStakes.Equal(d(12)), "stakes = %s", m.TotalStakes)
	assert.True(t, m.TradePnL.Equal(d(4)))
	assert.True(t, m.WinRate.Equal(d(50)))
	assert.InDelta(t, 33.3333, m.ROI.InexactFloat64(), 0.001)
	assert.InDelta(t, 41.6667, m.StakeWeightedWinRate.InexactFloat64(), 0.001)
	assert.InDelta(t, 2.0/27.0, m.Consistency, 1e-9)
	assert.InDelta(t, 66.6667, m.Recency, 0.001)
	assert.InDelta(t, 36.4815, m.FinalScore, 0.001)
	assert.Equal(t, m.FinalScore, m.Score.Final)

	assert.Equal(t, 1, m.ActivePositions)
	assert.Equal(t, 1, m.ClosedPositions)
	assert.Equal(t, "alpha", m.Profile.Name)
	assert.False(t, m.Partial)
	assert.Nil(t, m.Categories, "no market metadata, no categories")
	assert.Equal(t, now, m.ComputedAt)
}

func TestComputeWalletMetrics_Empty(t *testing.T) {
	m := ComputeWalletMetrics(walletA, model.WalletRecords{}, scoring.DefaultConfig(), now)
	assert.Zero(t, m.TotalTrades)
	assert.True(t, m.TotalPnL.IsZero())
	assert.Zero(t, m.FinalScore)
	assert.False(t, m.WinRateDefined)
}

func TestComputeWalletMetrics_PartialPosition(t *testing.T) {
	m := ComputeWalletMetrics(walletA, model.WalletRecords{
		Positions: []model.RawPosition{
			{MarketID: "open", InitialValue: d(10), CurrentValue: d(12)},
			{MarketID: "ok", InitialValue: d(10), CurrentValue: d(5), CashPnL: dp(-5)},
		},
	}, scoring.DefaultConfig(), now)
	assert.True(t, m.Partial)
	assert.True(t, m.TotalPnL.Equal(d(-5)))
	assert.True(t, m.TotalInvested.Equal(d(10)))
}

func TestComputeWalletMetrics_Deterministic(t *testing.T) {
	recs := model.WalletRecords{
		Trades: []model.RawTrade{
			{MarketID: "m1", Side: "BUY", SharesNormalized: dp(1), Price: dp(0.3), Timestamp: daysAgo(1)},
			{MarketID: "m1", Side: "SELL", SharesNormalized: dp(1), Price: dp(0.6), Timestamp: daysAgo(1)},
		},
		Markets: map[string]model.MarketMeta{"m1": {Category: "Politics", Resolution: model.ResolvedTo(model.OutcomeNo)}},
	}
	a := ComputeWalletMetrics(walletA, recs, scoring.DefaultConfig(), now)
	b := ComputeWalletMetrics(walletA, recs, scoring.DefaultConfig(), now)
	assert.Equal(t, a, b)
	require.Contains(t, a.Categories, "Politics")
	assert.Equal(t, 1, a.Categories["Politics"].Wins)
}

func TestMergeMarkets_ExplicitResolutionWins(t *testing.T) {
	out := mergeMarkets(model.WalletRecords{
		Markets: map[string]model.MarketMeta{
			"m1": {Category: "Sports"},
			"m2": {Category: "Sports", Resolution: model.ResolvedTo(model.OutcomeNo)},
		},
		Resolutions: map[string]model.Resolution{
			"m1": model.ResolvedTo(model.OutcomeYes),
			"m2": model.Unresolved,
			"m3": model.ResolvedTo(model.OutcomeNo),
		},
	})
	assert.Equal(t, model.OutcomeYes, out["m1"].Resolution.Winner)
	assert.Equal(t, "Sports", out["m1"].Category)
	assert.Equal(t, model.OutcomeNo, out["m2"].Resolution.Winner, "unresolved does not erase a known winner")
	assert.Equal(t, "m3", out["m3"].ID)
}

// --- Engine ---

// newTestEnv seeds two wallets: A traded recently for a small gain, B
// traded three weeks ago for a larger one.
func newTestEnv(t *testing.T) (*Engine, *provider.MemoryProvider, *store.MemoryStore) {
	t.Helper()
	p := provider.NewMemoryProvider()
	p.AddMarket(model.MarketMeta{ID: "rain-nyc", Category: "Weather", Resolution: model.ResolvedTo(model.OutcomeYes)})
	p.AddMarket(model.MarketMeta{ID: "fed-cut", Category: "Economics", Resolution: model.ResolvedTo(model.OutcomeNo)})

	p.SetRecords(walletA, model.WalletRecords{
		Trades: []model.RawTrade{
			{MarketID: "rain-nyc", Side: "BUY", SharesNormalized: dp(10), Price: dp(0.5), PnL: dp(10), Timestamp: daysAgo(2)},
		},
		Positions: []model.RawPosition{
			{MarketID: "rain-nyc", InitialValue: d(5), CurrentValue: d(0), CashPnL: dp(10), RealizedPnL: dp(10), UpdatedAt: daysAgo(2)},
		},
	})
	p.SetRecords(walletB, model.WalletRecords{
		Trades: []model.RawTrade{
			{MarketID: "fed-cut", Side: "BUY", SharesNormalized: dp(10), Price: dp(0.5), PnL: dp(50), Timestamp: daysAgo(20)},
			{MarketID: "rain-nyc", Side: "BUY", SharesNormalized: dp(2), Price: dp(0.5), Timestamp: daysAgo(21)},
		},
		Positions: []model.RawPosition{
			{MarketID: "fed-cut", InitialValue: d(5), CurrentValue: d(0), CashPnL: dp(50), RealizedPnL: dp(50), UpdatedAt: daysAgo(20)},
		},
	})

	st := store.NewMemoryStore()
	e, err := New(p, WithStore(st), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return e, p, st
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := scoring.DefaultConfig()
	cfg.RecencyWindow = 0
	_, err := New(provider.NewMemoryProvider(), WithConfig(cfg))
	assert.ErrorIs(t, err, scoring.ErrInvalidConfig)
}

func TestRankLeaderboard_Windows(t *testing.T) {
	e, _, _ := newTestEnv(t)
	ctx := context.Background()
	candidates := []string{walletA, walletB}

	lb, err := e.RankLeaderboard(ctx, candidates, leaderboard.MetricPnL, leaderboard.Window7d, 10)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 1, "B has no trades in the last 7 days")
	assert.Equal(t, walletA, lb.Entries[0].Wallet)
	assert.True(t, lb.Entries[0].TotalPnL.Equal(d(10)))
	assert.Equal(t, "7d", lb.Period)
	assert.Equal(t, "pnl", lb.Metric)
	assert.Equal(t, 1, lb.Count)

	lb, err = e.RankLeaderboard(ctx, candidates, leaderboard.MetricPnL, leaderboard.Window30d, 10)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, walletB, lb.Entries[0].Wallet)
	assert.Equal(t, 1, lb.Entries[0].Rank)
	assert.Equal(t, walletA, lb.Entries[1].Wallet)
	assert.Equal(t, 2, lb.Entries[1].Rank)

	lb, err = e.RankLeaderboard(ctx, candidates, leaderboard.MetricPnL, leaderboard.WindowAll, 1)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, walletB, lb.Entries[0].Wallet)
	assert.False(t, lb.Partial)
}

func TestRankLeaderboard_WinRate(t *testing.T) {
	e, _, _ := newTestEnv(t)
	lb, err := e.RankLeaderboard(context.Background(), []string{walletB, walletA}, leaderboard.MetricWinRate, leaderboard.WindowAll, 0)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 2)
	// A: 1/1 wins. B: lost fed-cut (resolved NO), won rain-nyc.
	assert.Equal(t, walletA, lb.Entries[0].Wallet)
	assert.True(t, lb.Entries[0].WinRate.Equal(d(100)))
	assert.True(t, lb.Entries[1].WinRate.Equal(d(50)))
}

func TestRankLeaderboard_SkipsUnavailableWallet(t *testing.T) {
	e, p, _ := newTestEnv(t)
	p.FailWallet(walletC, provider.ErrUpstreamUnavailable)

	lb, err := e.RankLeaderboard(context.Background(), []string{walletA, walletC, walletB}, leaderboard.MetricPnL, leaderboard.WindowAll, 10)
	require.NoError(t, err)
	assert.True(t, lb.Partial)
	assert.Equal(t, []string{walletC}, lb.SkippedWallets)
	assert.Len(t, lb.Entries, 2)
}

func TestRankLeaderboard_CanceledReturnsNothing(t *testing.T) {
	e, _, _ := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lb, err := e.RankLeaderboard(ctx, []string{walletA, walletB}, leaderboard.MetricPnL, leaderboard.WindowAll, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, lb.Entries)
}

func TestRankLeaderboard_InvalidCandidate(t *testing.T) {
	e, _, _ := newTestEnv(t)
	_, err := e.RankLeaderboard(context.Background(), []string{"nope"}, leaderboard.MetricPnL, leaderboard.WindowAll, 10)
	assert.ErrorIs(t, err, wallet.ErrInvalidAddress)
}

func TestRankLeaderboard_Deterministic(t *testing.T) {
	e, _, _ := newTestEnv(t)
	ctx := context.Background()
	a, err := e.RankLeaderboard(ctx, []string{walletA, walletB}, leaderboard.MetricScore, leaderboard.WindowAll, 10)
	require.NoError(t, err)
	b, err := e.RankLeaderboard(ctx, []string{walletB, walletA, walletA}, leaderboard.MetricScore, leaderboard.WindowAll, 10)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEvaluate_StoresMetrics(t *testing.T) {
	e, _, st := newTestEnv(t)
	ctx := context.Background()

	m, err := e.Evaluate(ctx, "not-a-wallet")
	assert.ErrorIs(t, err, wallet.ErrInvalidAddress)
	assert.Empty(t, m.Wallet)

	m, err = e.Evaluate(ctx, walletA)
	require.NoError(t, err)
	assert.True(t, m.TotalPnL.Equal(d(10)))
	require.Contains(t, m.Categories, "Weather")

	stored, ok, err := st.GetCachedMetrics(ctx, walletA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.TotalPnL.Equal(d(10)))

	tracked, err := e.TrackedWallets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{walletA}, tracked)
}

func TestEvaluate_UpstreamError(t *testing.T) {
	e, p, _ := newTestEnv(t)
	p.FailWallet(walletA, provider.ErrUpstreamUnavailable)

	_, err := e.Evaluate(context.Background(), walletA)
	assert.True(t, errors.Is(err, provider.ErrUpstreamUnavailable))
}

func TestEvaluate_SkipsWalletWithoutRecords(t *testing.T) {
	e, _, st := newTestEnv(t)
	ctx := context.Background()

	m, err := e.Evaluate(ctx, walletC)
	require.NoError(t, err)
	assert.False(t, HasRecords(m))

	_, ok, err := st.GetCachedMetrics(ctx, walletC)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetrics_ReadDoesNotTrack(t *testing.T) {
	e, _, _ := newTestEnv(t)
	ctx := context.Background()

	for _, refresh := range []bool{false, true} {
		m, err := e.Metrics(ctx, walletA, refresh)
		require.NoError(t, err)
		assert.True(t, m.TotalPnL.Equal(d(10)))
	}

	tracked, err := e.TrackedWallets(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)
}

func TestMetrics_ReadThrough(t *testing.T) {
	e, p, st := newTestEnv(t)
	ctx := context.Background()

	_, err := e.Evaluate(ctx, walletA)
	require.NoError(t, err)

	p.SetRecords(walletA, model.WalletRecords{
		Positions: []model.RawPosition{{MarketID: "m1", InitialValue: d(10), CashPnL: dp(2), RealizedPnL: dp(2)}},
	})

	cached, err := e.Metrics(ctx, walletA, false)
	require.NoError(t, err)
	assert.True(t, cached.TotalPnL.Equal(d(10)), "served from the store")

	fresh, err := e.Metrics(ctx, walletA, true)
	require.NoError(t, err)
	assert.True(t, fresh.TotalPnL.Equal(d(2)), "refresh recomputes")

	stored, ok, err := st.GetCachedMetrics(ctx, walletA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.TotalPnL.Equal(d(2)), "tracked wallet updated by refresh")
}

func TestAggregateByCategory(t *testing.T) {
	e, _, _ := newTestEnv(t)
	cats, err := e.AggregateByCategory(context.Background(), walletB)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Economics", cats[0].Category)
	assert.Equal(t, 1, cats[0].Losses)
	assert.Equal(t, "Weather", cats[1].Category)
	assert.Equal(t, 1, cats[1].Wins)
}

// countingProvider counts market lookups.
type countingProvider struct {
	*provider.MemoryProvider
	calls chan string
}

func (c *countingProvider) FetchMarket(ctx context.Context, id string) (model.MarketMeta, error) {
	c.calls <- id
	return c.MemoryProvider.FetchMarket(ctx, id)
}

func TestResolver_MemoizesPerRequest(t *testing.T) {
	mem := provider.NewMemoryProvider()
	mem.AddMarket(model.MarketMeta{ID: "m1", Resolution: model.ResolvedTo(model.OutcomeYes)})
	cp := &countingProvider{MemoryProvider: mem, calls: make(chan string, 16)}

	r := newResolver(cp, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := r.markets(ctx, []string{"m1", "missing"})
		require.NoError(t, err)
		assert.True(t, got["m1"].Resolution.Resolved())
		assert.False(t, got["missing"].Resolution.Resolved(), "unknown market degrades to unresolved")
	}
	assert.Len(t, cp.calls, 2, "each market looked up once")
}
