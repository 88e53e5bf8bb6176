package leaderboard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atmx/ranking-engine/internal/model"
)

// Window is the time range a leaderboard is computed over.
type Window string

const (
	Window7d  Window = "7d"
	Window30d Window = "30d"
	WindowAll Window = "all"
)

var ErrInvalidWindow = errors.New("leaderboard: invalid window")

// ParseWindow parses "7d", "30d" or "all". Empty means all-time.
func ParseWindow(raw string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "7d":
		return Window7d, nil
	case "30d":
		return Window30d, nil
	case "", "all":
		return WindowAll, nil
	default:
		return "", fmt.Errorf("%w: %q (expected 7d|30d|all)", ErrInvalidWindow, raw)
	}
}

// Duration returns the window length; false for all-time.
func (w Window) Duration() (time.Duration, bool) {
	switch w {
	case Window7d:
		return 7 * 24 * time.Hour, true
	case Window30d:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Since returns the window start relative to now; false for all-time.
func (w Window) Since(now time.Time) (time.Time, bool) {
	dur, ok := w.Duration()
	if !ok {
		return time.Time{}, false
	}
	return now.Add(-dur), true
}

// The three filters below apply each source's own timestamp semantics.
// Positions are filtered by when they were last touched, so a windowed
// PnL reflects positions updated in the window, not PnL accrued in it.

// FilterTrades keeps trades executed at or after since.
func FilterTrades(trades []model.RawTrade, since time.Time) []model.RawTrade {
	out := make([]model.RawTrade, 0, len(trades))
	for _, t := range trades {
		if !t.Timestamp.Before(since) {
			out = append(out, t)
		}
	}
	return out
}

// FilterPositions keeps positions updated at or after since. Positions
// with an unknown update time are kept.
func FilterPositions(positions []model.RawPosition, since time.Time) []model.RawPosition {
	out := make([]model.RawPosition, 0, len(positions))
	for _, p := range positions {
		if p.UpdatedAt.IsZero() || !p.UpdatedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out
}

// FilterActivities keeps activities at or after since.
func FilterActivities(activities []model.RawActivity, since time.Time) []model.RawActivity {
	out := make([]model.RawActivity, 0, len(activities))
	for _, a := range activities {
		if !a.Timestamp.Before(since) {
			out = append(out, a)
		}
	}
	return out
}

// FilterRecords applies the per-source filters for a window. All-time
// returns the records unchanged. Market data is shared, not filtered.
func FilterRecords(recs model.WalletRecords, w Window, now time.Time) model.WalletRecords {
	since, ok := w.Since(now)
	if !ok {
		return recs
	}
	return model.WalletRecords{
		Trades:      FilterTrades(recs.Trades, since),
		Positions:   FilterPositions(recs.Positions, since),
		Activities:  FilterActivities(recs.Activities, since),
		Resolutions: recs.Resolutions,
		Markets:     recs.Markets,
	}
}
