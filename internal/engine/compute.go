package engine

import (
	"time"

	"github.com/atmx/ranking-engine/internal/category"
	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/normalize"
	"github.com/atmx/ranking-engine/internal/pnl"
	"github.com/atmx/ranking-engine/internal/scoring"
	"github.com/atmx/ranking-engine/internal/tradestats"
)

// ComputeWalletMetrics derives the full metrics of one wallet from its raw
// records. It is pure: the same records, config and time always produce
// the same result. Category sub-metrics are filled in when the records
// carry market metadata.
func ComputeWalletMetrics(wallet string, recs model.WalletRecords, cfg scoring.Config, now time.Time) model.WalletMetrics {
	markets := mergeMarkets(recs)
	resolutions := category.Resolutions(markets)

	batch := normalize.Normalize(wallet, recs)
	br := pnl.Reconcile(batch.Positions, batch.Activities)
	st := tradestats.Compute(batch.Trades, resolutions, now, cfg.TradeParams())
	score := scoring.NewComposer(cfg).Compose(st)

	m := model.WalletMetrics{
		Wallet:  wallet,
		Profile: batch.Profile,

		TotalInvested:     br.TotalInvested,
		TotalCurrentValue: br.TotalCurrentValue,
		RealizedPnL:       br.RealizedPnL,
		UnrealizedPnL:     br.UnrealizedPnL,
		TotalRewards:      br.TotalRewards,
		TotalRedemptions:  br.TotalRedemptions,
		TotalPnL:          br.TotalPnL,
		PnLPercentage:     br.PnLPercentage,

		TotalTrades:        st.TotalTrades,
		BuyTrades:          st.BuyTrades,
		SellTrades:         st.SellTrades,
		TotalTradesWithPnL: st.TotalTradesWithPnL,
		DeterminableTrades: st.DeterminableTrades,
		WinningTrades:      st.WinningTrades,
		LosingTrades:       st.LosingTrades,
		AvgTradeSize:       st.AvgTradeSize,
		ActivePositions:    br.ActivePositions,
		ClosedPositions:    br.ClosedPositions,
		TotalPositions:     br.TotalPositions(),

		TotalStakes:          st.TotalStakes,
		TradePnL:             st.TradePnL,
		ROI:                  st.ROI,
		WinRate:              st.WinRate,
		WinRateDefined:       st.WinRateDefined,
		StakeWeightedWinRate: st.StakeWeightedWinRate,
		Consistency:          st.Consistency,
		Recency:              st.Recency,
		FinalScore:           score.Final,
		Score:                score,

		Partial:          br.Partial,
		MalformedRecords: batch.Issues.Malformed(),
		ComputedAt:       now,
	}
	if len(recs.Markets) > 0 && len(batch.Trades) > 0 {
		m.Categories = category.Aggregate(wallet, batch.Trades, markets)
	}
	return m
}

// mergeMarkets combines market metadata with the explicit resolution map.
// An explicit resolution wins over the one carried by the metadata.
func mergeMarkets(recs model.WalletRecords) map[string]model.MarketMeta {
	out := make(map[string]model.MarketMeta, len(recs.Markets)+len(recs.Resolutions))
	for id, m := range recs.Markets {
		m.ID = id
		out[id] = m
	}
	for id, res := range recs.Resolutions {
		m := out[id]
		m.ID = id
		if res.Resolved() || !m.Resolution.Resolved() {
			m.Resolution = res
		}
		out[id] = m
	}
	return out
}
