// Package leaderboard filters records by time window and ranks wallets by
// a chosen metric.
//
// Ranking is a total order: metric descending, then wallet ascending, so
// identical inputs always produce identical ranks.
package leaderboard

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/ranking-engine/internal/model"
)

// Metric selects what a leaderboard is sorted by.
type Metric string

const (
	MetricPnL     Metric = "pnl"
	MetricROI     Metric = "roi"
	MetricWinRate Metric = "win_rate"
	MetricScore   Metric = "score"
)

var ErrInvalidMetric = errors.New("leaderboard: invalid metric")

// ParseMetric parses a metric name. Empty means PnL.
func ParseMetric(raw string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pnl", "total_pnl":
		return MetricPnL, nil
	case "roi":
		return MetricROI, nil
	case "win_rate", "winrate":
		return MetricWinRate, nil
	case "score", "final_score":
		return MetricScore, nil
	default:
		return "", fmt.Errorf("%w: %q (expected pnl|roi|win_rate|score)", ErrInvalidMetric, raw)
	}
}

// Eligible reports whether a wallet's windowed metrics qualify for the
// leaderboard of the given metric.
func Eligible(m model.WalletMetrics, metric Metric) bool {
	if m.TotalTrades == 0 {
		return false
	}
	switch metric {
	case MetricROI:
		return m.TotalStakes.IsPositive()
	case MetricWinRate:
		return m.DeterminableTrades > 0
	default:
		return true
	}
}

// value returns the sort key of a wallet for the metric.
func value(m model.WalletMetrics, metric Metric) decimal.Decimal {
	switch metric {
	case MetricROI:
		return m.ROI
	case MetricWinRate:
		return m.WinRate
	case MetricScore:
		return decimal.NewFromFloat(m.FinalScore)
	default:
		return m.TotalPnL
	}
}

// Rank sorts eligible wallets and returns up to limit entries with
// contiguous 1-based ranks. A limit <= 0 returns every eligible wallet.
// The input slice is not modified.
func Rank(wallets []model.WalletMetrics, metric Metric, limit int) []model.LeaderboardEntry {
	eligible := make([]model.WalletMetrics, 0, len(wallets))
	for _, m := range wallets {
		if Eligible(m, metric) {
			eligible = append(eligible, m)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		vi, vj := value(eligible[i], metric), value(eligible[j], metric)
		if c := vi.Cmp(vj); c != 0 {
			return c > 0
		}
		return eligible[i].Wallet < eligible[j].Wallet
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	entries := make([]model.LeaderboardEntry, len(eligible))
	for i, m := range eligible {
		entries[i] = Entry(m, i+1)
	}
	return entries
}

// Entry projects metrics onto a leaderboard entry at the given rank.
func Entry(m model.WalletMetrics, rank int) model.LeaderboardEntry {
	return model.LeaderboardEntry{
		Rank:               rank,
		Wallet:             m.Wallet,
		Name:               m.Profile.Name,
		Pseudonym:          m.Profile.Pseudonym,
		ProfileImage:       m.Profile.ProfileImage,
		TotalPnL:           m.TotalPnL,
		ROI:                m.ROI,
		WinRate:            m.WinRate,
		TotalTrades:        m.TotalTrades,
		TotalTradesWithPnL: m.TotalTradesWithPnL,
		WinningTrades:      m.WinningTrades,
		TotalStakes:        m.TotalStakes,
		FinalScore:         m.FinalScore,
		Partial:            m.Partial,
	}
}
