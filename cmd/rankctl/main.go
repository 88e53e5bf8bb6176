// Command rankctl scores wallets and prints or exports leaderboards from
// the command line, using the same configuration as the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/atmx/ranking-engine/internal/app"
	"github.com/atmx/ranking-engine/internal/config"
	"github.com/atmx/ranking-engine/internal/logging"
	"github.com/atmx/ranking-engine/internal/provider"
)

// globalOptions are flags shared by every subcommand.
type globalOptions struct {
	fixture string
	format  string
	timeout time.Duration
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "rankctl",
		Short: "Score prediction-market wallets and build leaderboards",
		Long: `rankctl reconciles wallet PnL, computes trade statistics and composite
scores, and ranks wallets over 7d, 30d or all-time windows.

Records come from the configured provider (venue APIs by default) or from
a JSON snapshot given with --fixture.

Examples:
  rankctl score 0x56687bf447db6ffa42ffe2204a05edaa20f55839
  rankctl leaderboard --metric roi --period 30d --wallets 0xabc...,0xdef...
  rankctl export --fixture testdata/wallets.json --out board.csv`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.fixture, "fixture", "", "Read records from a JSON snapshot instead of the configured provider")
	root.PersistentFlags().StringVar(&opts.format, "format", "table", "Output format (table|json)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall command timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		newScoreCmd(opts),
		newLeaderboardCmd(opts),
		newCategoriesCmd(opts),
		newExportCmd(opts),
	)
	return root
}

// session is an opened App plus the loaded configuration.
type session struct {
	*app.App
	cfg config.Config
}

// open loads configuration, applies flag overrides and wires the engine.
// Logs go to stderr so stdout stays parseable.
func (o *globalOptions) open(ctx context.Context, stderr io.Writer) (*session, func(), error) {
	if o.format != "table" && o.format != "json" {
		return nil, nil, fmt.Errorf("invalid --format %q (expected table|json)", o.format)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.fixture != "" {
		cfg.Provider.Kind = "snapshot"
		cfg.Provider.SnapshotPath = o.fixture
	}
	cfg.Log.Output = "console"
	if o.verbose {
		cfg.Log.Level = "debug"
	} else if cfg.Log.Level == "" || cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}

	logger, closeLog, err := logging.NewWithConsole("rankctl", cfg.Log, stderr)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return &session{App: a, cfg: cfg}, func() {
		a.Close()
		closeLog()
	}, nil
}

func (o *globalOptions) context() (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), o.timeout)
}

// defaultCandidates returns the wallets of a snapshot provider, or the
// wallets with stored metrics otherwise.
func (s *session) defaultCandidates(ctx context.Context) ([]string, error) {
	if mp, ok := s.Provider.(*provider.MemoryProvider); ok {
		return mp.Wallets(), nil
	}
	return s.Engine.TrackedWallets(ctx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
