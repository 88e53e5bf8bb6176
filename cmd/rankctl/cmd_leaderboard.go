package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/atmx/ranking-engine/internal/export"
	"github.com/atmx/ranking-engine/internal/leaderboard"
	"github.com/atmx/ranking-engine/internal/model"
)

// boardOptions are the ranking flags of leaderboard and export.
type boardOptions struct {
	metric  string
	period  string
	limit   int
	wallets []string
}

func (b *boardOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&b.metric, "metric", "pnl", "Ranking metric (pnl|roi|win_rate|score)")
	cmd.Flags().StringVar(&b.period, "period", "all", "Time window (7d|30d|all)")
	cmd.Flags().IntVar(&b.limit, "limit", 100, "Maximum number of entries")
	cmd.Flags().StringSliceVar(&b.wallets, "wallets", nil, "Candidate wallets (default: snapshot or tracked wallets)")
}

func (b *boardOptions) rank(ctx context.Context, s *session) (model.Leaderboard, error) {
	metric, err := leaderboard.ParseMetric(b.metric)
	if err != nil {
		return model.Leaderboard{}, err
	}
	window, err := leaderboard.ParseWindow(b.period)
	if err != nil {
		return model.Leaderboard{}, err
	}
	if b.limit <= 0 {
		return model.Leaderboard{}, fmt.Errorf("--limit must be positive, got %d", b.limit)
	}

	candidates := b.wallets
	if len(candidates) == 0 {
		if candidates, err = s.defaultCandidates(ctx); err != nil {
			return model.Leaderboard{}, err
		}
	}
	return s.Engine.RankLeaderboard(ctx, candidates, metric, window, b.limit)
}

func newLeaderboardCmd(opts *globalOptions) *cobra.Command {
	board := &boardOptions{}
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank wallets by a metric over a time window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()

			s, closeFn, err := opts.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			lb, err := board.rank(ctx, s)
			if err != nil {
				return err
			}
			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), lb)
			}
			renderLeaderboard(cmd.OutOrStdout(), lb)
			return nil
		},
	}
	board.register(cmd)
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	board := &boardOptions{}
	var (
		out  string
		toS3 bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a leaderboard snapshot as CSV to a file or S3",
		Long: `Write a leaderboard snapshot as CSV.

With --s3 the file is uploaded to EXPORT_S3_BUCKET under EXPORT_S3_PREFIX,
keyed by period, metric and generation time. Otherwise it is written to
--out ("-" for stdout).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()

			s, closeFn, err := opts.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			lb, err := board.rank(ctx, s)
			if err != nil {
				return err
			}

			if toS3 {
				uploader, err := export.NewS3Uploader(ctx, s.cfg.Export.S3Bucket, s.cfg.Export.S3Prefix, s.cfg.Export.Region)
				if err != nil {
					return err
				}
				key, err := uploader.Upload(ctx, lb)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", s.cfg.Export.S3Bucket, key)
				return nil
			}

			if out == "" || out == "-" {
				return export.WriteCSV(cmd.OutOrStdout(), lb)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := export.WriteCSV(f, lb); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d entries to %s\n", len(lb.Entries), out)
			return nil
		},
	}
	board.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file")
	cmd.Flags().BoolVar(&toS3, "s3", false, "Upload to the configured S3 bucket")
	return cmd
}

func renderLeaderboard(w io.Writer, lb model.Leaderboard) {
	fmt.Fprintf(w, "Leaderboard: metric=%s period=%s entries=%d\n", lb.Metric, lb.Period, lb.Count)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Rank", "Wallet", "Name", "Total PnL", "ROI %", "Win Rate %", "Trades", "Score"})
	for _, e := range lb.Entries {
		name := e.Name
		if name == "" {
			name = e.Pseudonym
		}
		table.Append([]string{
			strconv.Itoa(e.Rank),
			e.Wallet,
			name,
			e.TotalPnL.StringFixed(2),
			e.ROI.StringFixed(2),
			e.WinRate.StringFixed(2),
			strconv.Itoa(e.TotalTrades),
			fmt.Sprintf("%.2f", e.FinalScore),
		})
	}
	table.Render()
	if lb.Partial {
		fmt.Fprintf(w, "partial: %d wallet(s) skipped: %v\n", len(lb.SkippedWallets), lb.SkippedWallets)
	}
}
