package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletMetrics is the full scoring result for one wallet. It is derived
// from raw records on every computation and replaced as a whole, never
// patched field by field.
type WalletMetrics struct {
	Wallet  string  `json:"wallet_address"`
	Profile Profile `json:"profile"`

	// Reconciled PnL.
	TotalInvested     decimal.Decimal `json:"total_invested"`
	TotalCurrentValue decimal.Decimal `json:"total_current_value"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL     decimal.Decimal `json:"unrealized_pnl"`
	TotalRewards      decimal.Decimal `json:"total_rewards"`
	TotalRedemptions  decimal.Decimal `json:"total_redemptions"`
	TotalPnL          decimal.Decimal `json:"total_pnl"`
	PnLPercentage     decimal.Decimal `json:"pnl_percentage"`

	// Trade statistics.
	TotalTrades        int             `json:"total_trades"`
	BuyTrades          int             `json:"buy_trades"`
	SellTrades         int             `json:"sell_trades"`
	TotalTradesWithPnL int             `json:"total_trades_with_pnl"`
	DeterminableTrades int             `json:"determinable_trades"`
	WinningTrades      int             `json:"winning_trades"`
	LosingTrades       int             `json:"losing_trades"`
	AvgTradeSize       decimal.Decimal `json:"avg_trade_size"`
	ActivePositions    int             `json:"active_positions"`
	ClosedPositions    int             `json:"closed_positions"`
	TotalPositions     int             `json:"total_positions"`

	// Trade-derived performance.
	TotalStakes          decimal.Decimal `json:"total_stakes"`
	TradePnL             decimal.Decimal `json:"trade_pnl"`
	ROI                  decimal.Decimal `json:"roi"`
	WinRate              decimal.Decimal `json:"win_rate"`
	WinRateDefined       bool            `json:"win_rate_defined"`
	StakeWeightedWinRate decimal.Decimal `json:"stake_weighted_win_rate"`
	Consistency          float64         `json:"consistency"`
	Recency              float64         `json:"recency"`
	FinalScore           float64         `json:"final_score"`
	Score                ScoreBreakdown  `json:"score_breakdown"`

	Categories map[string]CategoryMetrics `json:"categories,omitempty"`

	Partial          bool      `json:"partial"`
	MalformedRecords int       `json:"malformed_records"`
	ComputedAt       time.Time `json:"computed_at"`
}

// Clone returns a deep copy.
func (m WalletMetrics) Clone() WalletMetrics {
	out := m
	if m.Categories != nil {
		out.Categories = make(map[string]CategoryMetrics, len(m.Categories))
		for k, v := range m.Categories {
			out.Categories[k] = v
		}
	}
	return out
}

// ScoreBreakdown exposes each weighted term of the final score. Terms are
// never clamped; only Final is bounded to [0, 100].
type ScoreBreakdown struct {
	ROITerm         float64 `json:"roi_term"`
	WinRateTerm     float64 `json:"win_rate_term"`
	ConsistencyTerm float64 `json:"consistency_term"`
	RecencyTerm     float64 `json:"recency_term"`
	Raw             float64 `json:"raw"`
	Final           float64 `json:"final"`
}

// CategoryMetrics aggregates a wallet's trades within one market category.
type CategoryMetrics struct {
	Category    string          `json:"category"`
	TotalTrades int             `json:"total_trades"`
	Wins        int             `json:"total_wins"`
	Losses      int             `json:"total_losses"`
	TotalStakes decimal.Decimal `json:"total_stakes"`
	TradePnL    decimal.Decimal `json:"pnl"`
	WinRate     decimal.Decimal `json:"win_rate_percent"`
	ROI         decimal.Decimal `json:"roi"`
}

// LeaderboardEntry is a read-only projection of WalletMetrics at a rank.
type LeaderboardEntry struct {
	Rank               int             `json:"rank"`
	Wallet             string          `json:"wallet_address"`
	Name               string          `json:"name,omitempty"`
	Pseudonym          string          `json:"pseudonym,omitempty"`
	ProfileImage       string          `json:"profile_image,omitempty"`
	TotalPnL           decimal.Decimal `json:"total_pnl"`
	ROI                decimal.Decimal `json:"roi"`
	WinRate            decimal.Decimal `json:"win_rate"`
	TotalTrades        int             `json:"total_trades"`
	TotalTradesWithPnL int             `json:"total_trades_with_pnl"`
	WinningTrades      int             `json:"winning_trades"`
	TotalStakes        decimal.Decimal `json:"total_stakes"`
	FinalScore         float64         `json:"final_score"`
	Partial            bool            `json:"partial,omitempty"`
}

// Leaderboard is the ranked response for one metric and window.
type Leaderboard struct {
	Period         string             `json:"period"`
	Metric         string             `json:"metric"`
	Count          int                `json:"count"`
	Entries        []LeaderboardEntry `json:"entries"`
	Partial        bool               `json:"partial,omitempty"`
	SkippedWallets []string           `json:"skipped_wallets,omitempty"`
	GeneratedAt    time.Time          `json:"generated_at"`
}
