package leaderboard

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ranking-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var now = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

// --- Window parsing and filters ---

func TestParseWindow(t *testing.T) {
	for raw, want := range map[string]Window{"7d": Window7d, "30D": Window30d, "all": WindowAll, "": WindowAll} {
		got, err := ParseWindow(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := ParseWindow("1y")
	assert.True(t, errors.Is(err, ErrInvalidWindow))
}

func TestWindow_Since(t *testing.T) {
	since, ok := Window7d.Since(now)
	require.True(t, ok)
	assert.Equal(t, now.Add(-7*24*time.Hour), since)

	_, ok = WindowAll.Since(now)
	assert.False(t, ok)
}

func TestFilterPositions_UnknownUpdateTimeKept(t *testing.T) {
	since := now.Add(-7 * 24 * time.Hour)
	kept := FilterPositions([]model.RawPosition{
		{MarketID: "fresh", UpdatedAt: now.Add(-time.Hour)},
		{MarketID: "stale", UpdatedAt: now.Add(-10 * 24 * time.Hour)},
		{MarketID: "unknown"},
	}, since)
	require.Len(t, kept, 2)
	assert.Equal(t, "fresh", kept[0].MarketID)
	assert.Equal(t, "unknown", kept[1].MarketID)
}

func TestFilterRecords_PerSourceTimestamps(t *testing.T) {
	recs := model.WalletRecords{
		Trades: []model.RawTrade{
			{MarketID: "new", Timestamp: now.Add(-2 * 24 * time.Hour)},
			{MarketID: "old", Timestamp: now.Add(-20 * 24 * time.Hour)},
		},
		Positions: []model.RawPosition{
			{MarketID: "touched", UpdatedAt: now.Add(-24 * time.Hour)},
			{MarketID: "untouched", UpdatedAt: now.Add(-40 * 24 * time.Hour)},
		},
		Activities: []model.RawActivity{
			{Kind: "REWARD", Timestamp: now.Add(-3 * 24 * time.Hour)},
			{Kind: "REWARD", Timestamp: now.Add(-8 * 24 * time.Hour)},
		},
		Resolutions: map[string]model.Resolution{"old": model.ResolvedTo(model.OutcomeYes)},
	}

	week := FilterRecords(recs, Window7d, now)
	assert.Len(t, week.Trades, 1)
	assert.Len(t, week.Positions, 1)
	assert.Len(t, week.Activities, 1)
	assert.Len(t, week.Resolutions, 1, "market data is not filtered")

	month := FilterRecords(recs, Window30d, now)
	assert.Len(t, month.Trades, 2)
	assert.Len(t, month.Positions, 1)
	assert.Len(t, month.Activities, 2)

	all := FilterRecords(recs, WindowAll, now)
	assert.Len(t, all.Trades, 2)
	assert.Len(t, all.Positions, 2)
}

func TestFilterTrades_SupersetWindowKeepsSuperset(t *testing.T) {
	trades := []model.RawTrade{
		{Timestamp: now.Add(-1 * 24 * time.Hour)},
		{Timestamp: now.Add(-10 * 24 * time.Hour)},
		{Timestamp: now.Add(-29 * 24 * time.Hour)},
	}
	week := FilterTrades(trades, now.Add(-7*24*time.Hour))
	month := FilterTrades(trades, now.Add(-30*24*time.Hour))
	assert.GreaterOrEqual(t, len(month), len(week))
}

// --- Metric parsing and eligibility ---

func TestParseMetric(t *testing.T) {
	for raw, want := range map[string]Metric{"pnl": MetricPnL, "": MetricPnL, "ROI": MetricROI, "win_rate": MetricWinRate, "score": MetricScore} {
		got, err := ParseMetric(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := ParseMetric("volume")
	assert.True(t, errors.Is(err, ErrInvalidMetric))
}

func TestEligible(t *testing.T) {
	noTrades := model.WalletMetrics{Wallet: "a", TotalPnL: d(500)}
	for _, metric := range []Metric{MetricPnL, MetricROI, MetricWinRate, MetricScore} {
		assert.False(t, Eligible(noTrades, metric), "no trades, metric %s", metric)
	}

	zeroStake := model.WalletMetrics{Wallet: "b", TotalTrades: 1}
	assert.True(t, Eligible(zeroStake, MetricPnL))
	assert.False(t, Eligible(zeroStake, MetricROI))

	undetermined := model.WalletMetrics{Wallet: "c", TotalTrades: 2, TotalStakes: d(1)}
	assert.True(t, Eligible(undetermined, MetricROI))
	assert.False(t, Eligible(undetermined, MetricWinRate))
}

// --- Ranking ---

func wm(wallet string, pnl float64) model.WalletMetrics {
	return model.WalletMetrics{
		Wallet:             wallet,
		TotalPnL:           d(pnl),
		TotalTrades:        1,
		TotalStakes:        d(10),
		DeterminableTrades: 1,
	}
}

func TestRank_SortsDescendingWithWalletTieBreak(t *testing.T) {
	wallets := []model.WalletMetrics{
		wm("0xccc", 50),
		wm("0xaaa", 100),
		wm("0xddd", 50),
		wm("0xbbb", 50),
	}
	entries := Rank(wallets, MetricPnL, 0)
	require.Len(t, entries, 4)

	var order []string
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank, "ranks are contiguous and 1-based")
		order = append(order, e.Wallet)
	}
	assert.Equal(t, []string{"0xaaa", "0xbbb", "0xccc", "0xddd"}, order)
	assert.Equal(t, "0xccc", wallets[0].Wallet, "input is not reordered")
}

func TestRank_Deterministic(t *testing.T) {
	wallets := []model.WalletMetrics{wm("0x3", 1), wm("0x1", 1), wm("0x2", 1)}
	reversed := []model.WalletMetrics{wallets[2], wallets[1], wallets[0]}
	assert.Equal(t, Rank(wallets, MetricPnL, 0), Rank(reversed, MetricPnL, 0))
}

func TestRank_Limit(t *testing.T) {
	wallets := []model.WalletMetrics{wm("0x1", 3), wm("0x2", 2), wm("0x3", 1)}
	entries := Rank(wallets, MetricPnL, 2)
	require.Len(t, entries, 2)
	assert.Equal(t, "0x1", entries[0].Wallet)
	assert.Equal(t, "0x2", entries[1].Wallet)
}

func TestRank_ExcludesIneligible(t *testing.T) {
	noStake := wm("0xnostake", 99)
	noStake.TotalStakes = decimal.Zero
	noStake.ROI = d(1000)

	good := wm("0xgood", 1)
	good.ROI = d(10)

	entries := Rank([]model.WalletMetrics{noStake, good}, MetricROI, 10)
	require.Len(t, entries, 1)
	assert.Equal(t, "0xgood", entries[0].Wallet)
}

func TestRank_ByScoreAndWinRate(t *testing.T) {
	a := wm("0xa", 0)
	a.FinalScore, a.WinRate = 40, d(90)
	b := wm("0xb", 0)
	b.FinalScore, b.WinRate = 60, d(10)

	byScore := Rank([]model.WalletMetrics{a, b}, MetricScore, 0)
	assert.Equal(t, "0xb", byScore[0].Wallet)

	byWin := Rank([]model.WalletMetrics{a, b}, MetricWinRate, 0)
	assert.Equal(t, "0xa", byWin[0].Wallet)
}

func TestEntry_ProjectsDisplayFields(t *testing.T) {
	m := wm("0xa", 12)
	m.Profile = model.Profile{Name: "alpha", Pseudonym: "Bright-Owl", ProfileImage: "https://img/a.png"}
	m.TotalTradesWithPnL = 1
	m.WinningTrades = 1
	m.Partial = true

	e := Entry(m, 3)
	assert.Equal(t, 3, e.Rank)
	assert.Equal(t, "alpha", e.Name)
	assert.Equal(t, "Bright-Owl", e.Pseudonym)
	assert.True(t, e.TotalPnL.Equal(d(12)))
	assert.Equal(t, 1, e.WinningTrades)
	assert.True(t, e.Partial)
}
