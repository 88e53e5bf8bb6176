// Package pnl reconciles positions and account activities into one
// wallet-level profit and loss breakdown.
//
// All monetary values use shopspring/decimal, never float64 for money.
package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/ranking-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Breakdown is the reconciled PnL of one wallet.
//
//	TotalPnL = RealizedPnL + UnrealizedPnL + TotalRewards - TotalRedemptions
type Breakdown struct {
	TotalInvested     decimal.Decimal
	TotalCurrentValue decimal.Decimal
	RealizedPnL       decimal.Decimal
	UnrealizedPnL     decimal.Decimal
	TotalRewards      decimal.Decimal
	TotalRedemptions  decimal.Decimal
	TotalPnL          decimal.Decimal
	PnLPercentage     decimal.Decimal

	ActivePositions  int
	ClosedPositions  int
	SkippedPositions int

	// Partial is set when an open position lacked cash PnL and was left
	// out of the sums, so totals may undercount.
	Partial bool
}

// Unrealized returns the unrealized PnL of one position as
// cashPnl - realizedPnl. A closed position without cash PnL is taken to
// have cashPnl == realizedPnl. It reports false for an open position with
// no cash PnL.
func Unrealized(p model.Position) (decimal.Decimal, bool) {
	cash := p.RealizedPnL
	if p.CashPnL != nil {
		cash = *p.CashPnL
	} else if !p.Closed() {
		return decimal.Zero, false
	}
	return cash.Sub(p.RealizedPnL), true
}

// Reconcile computes the PnL breakdown from normalized positions and
// activities.
func Reconcile(positions []model.Position, activities []model.Activity) Breakdown {
	var b Breakdown

	for _, p := range positions {
		unrealized, ok := Unrealized(p)
		if !ok {
			b.SkippedPositions++
			b.Partial = true
			continue
		}
		b.TotalInvested = b.TotalInvested.Add(p.InitialValue)
		b.TotalCurrentValue = b.TotalCurrentValue.Add(p.CurrentValue)
		b.RealizedPnL = b.RealizedPnL.Add(p.RealizedPnL)
		b.UnrealizedPnL = b.UnrealizedPnL.Add(unrealized)

		if p.CurrentValue.IsPositive() {
			b.ActivePositions++
		} else {
			b.ClosedPositions++
		}
	}

	for _, a := range activities {
		switch a.Kind {
		case model.ActivityReward:
			b.TotalRewards = b.TotalRewards.Add(a.Amount)
		case model.ActivityRedeem:
			b.TotalRedemptions = b.TotalRedemptions.Add(a.Amount)
		}
	}

	b.TotalPnL = b.RealizedPnL.
		Add(b.UnrealizedPnL).
		Add(b.TotalRewards).
		Sub(b.TotalRedemptions)

	if !b.TotalInvested.IsZero() {
		b.PnLPercentage = b.TotalPnL.Div(b.TotalInvested).Mul(hundred)
	}
	return b
}

// TotalPositions returns the number of positions that entered the sums.
func (b Breakdown) TotalPositions() int {
	return b.ActivePositions + b.ClosedPositions
}
