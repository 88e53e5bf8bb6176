package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/wallet"
)

func newScoreCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score <wallet>...",
		Short: "Compute all-time metrics for one or more wallets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()

			s, closeFn, err := opts.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			results := make([]model.WalletMetrics, 0, len(args))
			for _, raw := range args {
				m, err := s.Engine.Metrics(ctx, raw, true)
				if err != nil {
					return err
				}
				results = append(results, m)
			}

			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			renderMetrics(cmd.OutOrStdout(), results)
			return nil
		},
	}
}

func newCategoriesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "categories <wallet>",
		Short: "Break a wallet's trades down by market category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()

			s, closeFn, err := opts.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			cats, err := s.Engine.AggregateByCategory(ctx, args[0])
			if err != nil {
				return err
			}

			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), cats)
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Category", "Trades", "Wins", "Losses", "Stakes", "PnL", "Win Rate %", "ROI %"})
			for _, c := range cats {
				table.Append([]string{
					c.Category,
					strconv.Itoa(c.TotalTrades),
					strconv.Itoa(c.Wins),
					strconv.Itoa(c.Losses),
					c.TotalStakes.StringFixed(2),
					c.TradePnL.StringFixed(2),
					c.WinRate.StringFixed(2),
					c.ROI.StringFixed(2),
				})
			}
			table.Render()
			return nil
		},
	}
}

func renderMetrics(w io.Writer, results []model.WalletMetrics) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Wallet", "Total PnL", "PnL %", "ROI %", "Win Rate %", "Trades", "Score", "Partial"})
	for _, m := range results {
		winRate := "n/a"
		if m.WinRateDefined {
			winRate = m.WinRate.StringFixed(2)
		}
		table.Append([]string{
			wallet.Short(m.Wallet),
			m.TotalPnL.StringFixed(2),
			m.PnLPercentage.StringFixed(2),
			m.ROI.StringFixed(2),
			winRate,
			strconv.Itoa(m.TotalTrades),
			fmt.Sprintf("%.2f", m.FinalScore),
			strconv.FormatBool(m.Partial),
		})
	}
	table.Render()
}
