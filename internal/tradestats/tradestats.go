// Package tradestats derives stake, win/loss, ROI, consistency and recency
// metrics from normalized trades and market resolutions.
package tradestats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/atmx/ranking-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Params controls the consistency and recency calculations.
type Params struct {
	// ConsistencyWeights are applied most-recent-first; its length is the
	// number of recent trades considered.
	ConsistencyWeights []float64
	// RecencyWindow is how far back from the evaluation time a trade
	// counts as recent.
	RecencyWindow time.Duration
}

// Result is the outcome of one trade for win/loss purposes.
type Result int

const (
	Undetermined Result = iota
	Win
	Loss
)

// Score returns +1, -1 or 0.
func (r Result) Score() float64 {
	switch r {
	case Win:
		return 1
	case Loss:
		return -1
	default:
		return 0
	}
}

// Classify decides whether a trade won. Only trades with a known side and
// held outcome on a resolved market are determinable. A BUY wins when the
// market resolved to the held outcome; a SELL wins when it resolved
// against it.
func Classify(t model.Trade, res model.Resolution) Result {
	if !res.Resolved() || t.Held == model.OutcomeUnknown {
		return Undetermined
	}
	heldWon := res.Winner == t.Held
	switch t.Side {
	case model.SideBuy:
		if heldWon {
			return Win
		}
		return Loss
	case model.SideSell:
		if heldWon {
			return Loss
		}
		return Win
	default:
		return Undetermined
	}
}

// Stats holds the trade-derived metrics of one wallet. Percentages are in
// [0, 100] except ROI, which is unbounded.
type Stats struct {
	TotalTrades        int
	BuyTrades          int
	SellTrades         int
	TotalTradesWithPnL int
	DeterminableTrades int
	WinningTrades      int
	LosingTrades       int

	TotalStakes   decimal.Decimal
	WinningStakes decimal.Decimal
	TradePnL      decimal.Decimal
	AvgTradeSize  decimal.Decimal

	ROI                  decimal.Decimal
	WinRate              decimal.Decimal
	WinRateDefined       bool
	StakeWeightedWinRate decimal.Decimal

	Consistency float64 // [-1, 1]
	Recency     float64 // [0, 100]
}

// Compute derives trade metrics. Zero trades yield zero metrics.
func Compute(trades []model.Trade, resolutions map[string]model.Resolution, now time.Time, p Params) Stats {
	var s Stats
	s.TotalTrades = len(trades)
	if s.TotalTrades == 0 {
		return s
	}

	recent := 0
	cutoff := now.Add(-p.RecencyWindow)

	for _, t := range trades {
		stake := t.Stake()
		s.TotalStakes = s.TotalStakes.Add(stake)

		switch t.Side {
		case model.SideBuy:
			s.BuyTrades++
		case model.SideSell:
			s.SellTrades++
		}

		if t.PnL != nil {
			s.TradePnL = s.TradePnL.Add(*t.PnL)
			s.TotalTradesWithPnL++
		}

		switch Classify(t, resolutions[t.MarketID]) {
		case Win:
			s.WinningTrades++
			s.DeterminableTrades++
			s.WinningStakes = s.WinningStakes.Add(stake)
		case Loss:
			s.LosingTrades++
			s.DeterminableTrades++
		}

		if !t.Timestamp.Before(cutoff) {
			recent++
		}
	}

	total := decimal.NewFromInt(int64(s.TotalTrades))
	s.AvgTradeSize = s.TotalStakes.Div(total)

	if s.DeterminableTrades > 0 {
		s.WinRateDefined = true
		s.WinRate = decimal.NewFromInt(int64(s.WinningTrades)).
			Div(decimal.NewFromInt(int64(s.DeterminableTrades))).
			Mul(hundred)
	}
	if s.TotalStakes.IsPositive() {
		s.ROI = s.TradePnL.Div(s.TotalStakes).Mul(hundred)
		s.StakeWeightedWinRate = s.WinningStakes.Div(s.TotalStakes).Mul(hundred)
	}

	s.Consistency = consistency(trades, resolutions, p.ConsistencyWeights)
	s.Recency = float64(recent) / float64(s.TotalTrades) * 100
	return s
}

// consistency is the weighted mean of the most recent trade results,
// normalized by the weights actually applied.
func consistency(trades []model.Trade, resolutions map[string]model.Resolution, weights []float64) float64 {
	recent := MostRecent(trades, len(weights))
	if len(recent) == 0 {
		return 0
	}
	scores := make([]float64, len(recent))
	for i, t := range recent {
		scores[i] = Classify(t, resolutions[t.MarketID]).Score()
	}
	return stat.Mean(scores, weights[:len(recent)])
}

// MostRecent returns up to n trades ordered most recent first. Equal
// timestamps keep provider order.
func MostRecent(trades []model.Trade, n int) []model.Trade {
	out := make([]model.Trade, len(trades))
	copy(out, trades)
	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].Timestamp.Equal(out[b].Timestamp) {
			return out[a].Timestamp.After(out[b].Timestamp)
		}
		return out[a].Seq < out[b].Seq
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}
