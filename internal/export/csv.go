// Package export writes leaderboard snapshots as CSV, locally or to S3.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/atmx/ranking-engine/internal/model"
)

// Header is the CSV column order.
var Header = []string{
	"rank",
	"wallet_address",
	"name",
	"pseudonym",
	"total_pnl",
	"roi",
	"win_rate",
	"total_trades",
	"total_trades_with_pnl",
	"winning_trades",
	"total_stakes",
	"final_score",
}

// WriteCSV writes one header row and one row per leaderboard entry.
// Decimals are written at full precision.
func WriteCSV(w io.Writer, lb model.Leaderboard) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, e := range lb.Entries {
		row := []string{
			strconv.Itoa(e.Rank),
			e.Wallet,
			e.Name,
			e.Pseudonym,
			e.TotalPnL.String(),
			e.ROI.String(),
			e.WinRate.String(),
			strconv.Itoa(e.TotalTrades),
			strconv.Itoa(e.TotalTradesWithPnL),
			strconv.Itoa(e.WinningTrades),
			e.TotalStakes.String(),
			strconv.FormatFloat(e.FinalScore, 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write rank %d: %w", e.Rank, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
