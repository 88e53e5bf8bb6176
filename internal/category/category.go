// Package category groups a wallet's trade metrics by market category.
package category

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/tradestats"
)

var hundred = decimal.NewFromInt(100)

// Aggregate computes per-category sub-metrics for one wallet's trades.
// Markets missing from the metadata fall into model.DefaultCategory and
// count as unresolved.
func Aggregate(wallet string, trades []model.Trade, markets map[string]model.MarketMeta) map[string]model.CategoryMetrics {
	out := make(map[string]model.CategoryMetrics)
	for _, t := range trades {
		meta, ok := markets[t.MarketID]
		if !ok {
			meta = model.MarketMeta{ID: t.MarketID}
		}
		name := meta.CategoryName()

		c := out[name]
		c.Category = name
		c.TotalTrades++
		c.TotalStakes = c.TotalStakes.Add(t.Stake())
		if t.PnL != nil {
			c.TradePnL = c.TradePnL.Add(*t.PnL)
		}
		switch tradestats.Classify(t, meta.Resolution) {
		case tradestats.Win:
			c.Wins++
		case tradestats.Loss:
			c.Losses++
		}
		out[name] = c
	}

	for name, c := range out {
		if decided := c.Wins + c.Losses; decided > 0 {
			c.WinRate = decimal.NewFromInt(int64(c.Wins)).
				Div(decimal.NewFromInt(int64(decided))).
				Mul(hundred)
		}
		if c.TotalStakes.IsPositive() {
			c.ROI = c.TradePnL.Div(c.TotalStakes).Mul(hundred)
		}
		out[name] = c
	}
	return out
}

// Sorted returns the categories ordered by trade count descending, then
// name ascending.
func Sorted(cats map[string]model.CategoryMetrics) []model.CategoryMetrics {
	out := make([]model.CategoryMetrics, 0, len(cats))
	for _, c := range cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTrades != out[j].TotalTrades {
			return out[i].TotalTrades > out[j].TotalTrades
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Resolutions extracts the resolution map from market metadata.
func Resolutions(markets map[string]model.MarketMeta) map[string]model.Resolution {
	out := make(map[string]model.Resolution, len(markets))
	for id, m := range markets {
		out[id] = m.Resolution
	}
	return out
}
