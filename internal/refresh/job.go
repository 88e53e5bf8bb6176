package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/ranking-engine/internal/engine"
	"github.com/atmx/ranking-engine/internal/metrics"
	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/wallet"
)

// DefaultConcurrency bounds wallets evaluated at once during a run.
const DefaultConcurrency = 4

// ErrAllFailed is returned when no wallet of a run could be evaluated.
var ErrAllFailed = errors.New("refresh: every wallet failed")

// Publisher is notified of refreshed metrics. *api.WSHub implements it.
type Publisher interface {
	PublishMetrics(m model.WalletMetrics)
	PublishRefresh(runID string, evaluated, failed int)
}

// Result summarizes one refresh run.
type Result struct {
	RunID     string
	Evaluated int
	Failed    []string
	Duration  time.Duration
}

// Job re-evaluates every tracked wallet plus a configured seed list.
type Job struct {
	Engine      *engine.Engine
	Publisher   Publisher // optional
	Seeds       []string
	Timeout     time.Duration
	Concurrency int
	Logger      *slog.Logger
}

// Name implements Task.
func (j *Job) Name() string { return "refresh_wallet_metrics" }

// Run implements Task.
func (j *Job) Run() error {
	ctx := context.Background()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	_, err := j.Refresh(ctx)
	return err
}

// Refresh evaluates all wallets once. Individual wallet failures are
// logged and counted; ctx cancellation aborts the run.
func (j *Job) Refresh(ctx context.Context) (Result, error) {
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	res := Result{RunID: uuid.NewString()}
	start := time.Now()
	logger = logger.With("run_id", res.RunID)

	wallets, err := j.wallets(ctx, logger)
	if err != nil {
		metrics.RefreshRuns.WithLabelValues("error").Inc()
		return res, fmt.Errorf("refresh: list wallets: %w", err)
	}

	limit := j.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, addr := range wallets {
		addr := addr
		g.Go(func() error {
			m, err := j.Engine.Evaluate(gctx, addr)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("wallet refresh failed", "wallet", wallet.Short(addr), "error", err)
				mu.Lock()
				res.Failed = append(res.Failed, addr)
				mu.Unlock()
				return nil
			}
			if j.Publisher != nil {
				j.Publisher.PublishMetrics(m)
			}
			mu.Lock()
			res.Evaluated++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RefreshRuns.WithLabelValues("canceled").Inc()
		return res, fmt.Errorf("refresh %s: %w", res.RunID, err)
	}

	sort.Strings(res.Failed)
	res.Duration = time.Since(start)

	if tracked, err := j.Engine.TrackedWallets(ctx); err == nil {
		metrics.StoredWallets.Set(float64(len(tracked)))
	}
	if j.Publisher != nil {
		j.Publisher.PublishRefresh(res.RunID, res.Evaluated, len(res.Failed))
	}

	logger.Info("refresh completed",
		"wallets", len(wallets),
		"evaluated", res.Evaluated,
		"failed", len(res.Failed),
		"duration", res.Duration,
	)

	switch {
	case len(wallets) > 0 && res.Evaluated == 0:
		metrics.RefreshRuns.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("%w (%d wallets)", ErrAllFailed, len(wallets))
	case len(res.Failed) > 0:
		metrics.RefreshRuns.WithLabelValues("partial").Inc()
	default:
		metrics.RefreshRuns.WithLabelValues("ok").Inc()
	}
	return res, nil
}

// wallets returns tracked wallets and valid seeds, deduplicated and
// sorted. Invalid seeds are logged and ignored.
func (j *Job) wallets(ctx context.Context, logger *slog.Logger) ([]string, error) {
	tracked, err := j.Engine.TrackedWallets(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(tracked)+len(j.Seeds))
	out := make([]string, 0, len(tracked)+len(j.Seeds))
	add := func(addr string) {
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	for _, addr := range tracked {
		add(wallet.Normalize(addr))
	}
	for _, raw := range j.Seeds {
		addr, err := wallet.ParseAddress(raw)
		if err != nil {
			logger.Warn("ignoring invalid seed wallet", "wallet", raw, "error", err)
			continue
		}
		add(addr)
	}
	sort.Strings(out)
	return out, nil
}
