package category

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ranking-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func dp(f float64) *decimal.Decimal {
	v := d(f)
	return &v
}

func TestAggregate_GroupsByCategory(t *testing.T) {
	markets := map[string]model.MarketMeta{
		"fed-cut":   {ID: "fed-cut", Category: "Economics", Resolution: model.ResolvedTo(model.OutcomeYes)},
		"cpi-above": {ID: "cpi-above", Category: "Economics", Resolution: model.ResolvedTo(model.OutcomeNo)},
		"nba-final": {ID: "nba-final", Category: "Sports"},
	}
	trades := []model.Trade{
		{MarketID: "fed-cut", Side: model.SideBuy, Held: model.OutcomeYes, Quantity: d(10), Price: d(0.5), PnL: dp(5)},
		{MarketID: "cpi-above", Side: model.SideBuy, Held: model.OutcomeYes, Quantity: d(10), Price: d(0.5), PnL: dp(-5)},
		{MarketID: "cpi-above", Side: model.SideSell, Held: model.OutcomeYes, Quantity: d(4), Price: d(0.25)},
		{MarketID: "nba-final", Side: model.SideBuy, Held: model.OutcomeYes, Quantity: d(2), Price: d(0.5)},
		{MarketID: "unknown-market", Side: model.SideBuy, Held: model.OutcomeYes, Quantity: d(1), Price: d(1)},
	}

	cats := Aggregate("0xabc", trades, markets)
	require.Len(t, cats, 3)

	econ := cats["Economics"]
	assert.Equal(t, 3, econ.TotalTrades)
	assert.Equal(t, 2, econ.Wins)
	assert.Equal(t, 1, econ.Losses)
	assert.True(t, econ.TotalStakes.Equal(d(11)), "stakes = %s", econ.TotalStakes)
	assert.True(t, econ.TradePnL.IsZero())
	assert.True(t, econ.WinRate.Sub(d(66.6667)).Abs().LessThan(d(0.001)), "win rate = %s", econ.WinRate)

	sports := cats["Sports"]
	assert.Equal(t, 1, sports.TotalTrades)
	assert.Zero(t, sports.Wins+sports.Losses, "open market is undetermined")
	assert.True(t, sports.WinRate.IsZero())

	other := cats[model.DefaultCategory]
	assert.Equal(t, 1, other.TotalTrades)
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, Aggregate("0xabc", nil, nil))
}

func TestAggregate_ROI(t *testing.T) {
	cats := Aggregate("0xabc", []model.Trade{
		{MarketID: "m", Side: model.SideBuy, Held: model.OutcomeYes, Quantity: d(20), Price: d(0.5), PnL: dp(2.5)},
	}, map[string]model.MarketMeta{"m": {ID: "m", Category: "Politics"}})
	assert.True(t, cats["Politics"].ROI.Equal(d(25)), "roi = %s", cats["Politics"].ROI)
}

func TestSorted(t *testing.T) {
	out := Sorted(map[string]model.CategoryMetrics{
		"b": {Category: "b", TotalTrades: 2},
		"a": {Category: "a", TotalTrades: 2},
		"c": {Category: "c", TotalTrades: 5},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "c", out[0].Category)
	assert.Equal(t, "a", out[1].Category)
	assert.Equal(t, "b", out[2].Category)
}

func TestResolutions(t *testing.T) {
	res := Resolutions(map[string]model.MarketMeta{
		"m": {ID: "m", Resolution: model.ResolvedTo(model.OutcomeNo)},
	})
	assert.Equal(t, model.OutcomeNo, res["m"].Winner)
	assert.False(t, res["missing"].Resolved())
}
