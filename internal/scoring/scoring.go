// Package scoring combines trade metrics into one bounded performance score.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/tradestats"
)

// Default weighting of the score components.
const (
	DefaultROIWeight         = 0.4
	DefaultWinRateWeight     = 0.3
	DefaultConsistencyWeight = 0.2
	DefaultRecencyWeight     = 0.1

	DefaultConsistencyTrades = 10
	DefaultRecencyWindow     = 7 * 24 * time.Hour

	MinScore = 0.0
	MaxScore = 100.0
)

var ErrInvalidConfig = errors.New("scoring: invalid config")

// Weights are the coefficients of each score component.
type Weights struct {
	ROI         float64 `json:"roi"`
	WinRate     float64 `json:"win_rate"`
	Consistency float64 `json:"consistency"`
	Recency     float64 `json:"recency"`
}

// Config holds every constant of the scoring formula.
type Config struct {
	Weights Weights
	// ConsistencyDecay weights the most recent trades, most recent first.
	ConsistencyDecay []float64
	RecencyWindow    time.Duration
}

// DefaultConfig returns the 0.4/0.3/0.2/0.1 weighting with a 10..1 decay
// over the last 10 trades and a 7-day recency window.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			ROI:         DefaultROIWeight,
			WinRate:     DefaultWinRateWeight,
			Consistency: DefaultConsistencyWeight,
			Recency:     DefaultRecencyWeight,
		},
		ConsistencyDecay: LinearDecay(DefaultConsistencyTrades),
		RecencyWindow:    DefaultRecencyWindow,
	}
}

// LinearDecay returns n, n-1, ..., 1.
func LinearDecay(n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(n - i)
	}
	return out
}

// Validate checks that weights are finite and decay weights positive.
func (c Config) Validate() error {
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"roi", c.Weights.ROI},
		{"win_rate", c.Weights.WinRate},
		{"consistency", c.Weights.Consistency},
		{"recency", c.Weights.Recency},
	} {
		if math.IsNaN(w.value) || math.IsInf(w.value, 0) {
			return fmt.Errorf("%w: %s weight is not finite", ErrInvalidConfig, w.name)
		}
	}
	for i, w := range c.ConsistencyDecay {
		if !(w > 0) {
			return fmt.Errorf("%w: consistency decay[%d] must be > 0", ErrInvalidConfig, i)
		}
	}
	if c.RecencyWindow <= 0 {
		return fmt.Errorf("%w: recency window must be > 0", ErrInvalidConfig)
	}
	return nil
}

// TradeParams returns the calculator parameters derived from the config.
func (c Config) TradeParams() tradestats.Params {
	return tradestats.Params{
		ConsistencyWeights: c.ConsistencyDecay,
		RecencyWindow:      c.RecencyWindow,
	}
}

// Composer computes final scores with an injected configuration.
type Composer struct {
	cfg Config
}

// NewComposer creates a composer.
func NewComposer(cfg Config) *Composer {
	return &Composer{cfg: cfg}
}

// Compose combines ROI, win rate, consistency and recency:
//
//	final = clamp(100 * (wROI*roi/100 + wWin*winRate/100 + wCons*consistency + wRec*recency/100), 0, 100)
//
// Inputs are not clamped, so an extreme ROI stays visible in the terms.
func (c *Composer) Compose(s tradestats.Stats) model.ScoreBreakdown {
	w := c.cfg.Weights
	b := model.ScoreBreakdown{
		ROITerm:         100 * w.ROI * s.ROI.InexactFloat64() / 100,
		WinRateTerm:     100 * w.WinRate * s.WinRate.InexactFloat64() / 100,
		ConsistencyTerm: 100 * w.Consistency * s.Consistency,
		RecencyTerm:     100 * w.Recency * s.Recency / 100,
	}
	b.Raw = b.ROITerm + b.WinRateTerm + b.ConsistencyTerm + b.RecencyTerm
	b.Final = Clamp(b.Raw)
	return b
}

// Clamp bounds a raw score to [MinScore, MaxScore]. NaN maps to MinScore.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinScore
	}
	return math.Max(MinScore, math.Min(MaxScore, v))
}
