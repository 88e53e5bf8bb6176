// Package normalize converts raw provider records into the canonical
// shapes used by the reconciler and the trade metrics calculator.
//
// Normalization is a pure transform. A bad record is counted and dropped;
// it never aborts the batch.
package normalize

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/ranking-engine/internal/model"
)

// ShareScale is the number of decimal places in raw share quantities.
const ShareScale = 6

// Issues counts records that were dropped or degraded during normalization.
type Issues struct {
	MalformedTrades   int `json:"malformed_trades"`
	UnknownSideTrades int `json:"unknown_side_trades"`
}

// Malformed returns the number of records excluded from calculations.
func (i Issues) Malformed() int {
	return i.MalformedTrades
}

// Batch is the normalized view of one wallet's records.
type Batch struct {
	Trades     []model.Trade
	Positions  []model.Position
	Activities []model.Activity
	Profile    model.Profile
	Issues     Issues
}

// Normalize converts one wallet's raw records. Records keep provider order.
func Normalize(wallet string, recs model.WalletRecords) Batch {
	b := Batch{
		Trades:     make([]model.Trade, 0, len(recs.Trades)),
		Positions:  make([]model.Position, 0, len(recs.Positions)),
		Activities: make([]model.Activity, 0, len(recs.Activities)),
	}

	for i, rt := range recs.Trades {
		t, ok := Trade(wallet, rt)
		if !ok {
			b.Issues.MalformedTrades++
			continue
		}
		t.Seq = i
		if t.Side == model.SideUnknown {
			b.Issues.UnknownSideTrades++
		}
		b.Trades = append(b.Trades, t)
		if b.Profile.IsZero() {
			b.Profile = model.Profile{
				Name:         rt.Name,
				Pseudonym:    rt.Pseudonym,
				ProfileImage: rt.ProfileImage,
			}
		}
	}

	for _, rp := range recs.Positions {
		b.Positions = append(b.Positions, Position(wallet, rp))
	}
	for _, ra := range recs.Activities {
		b.Activities = append(b.Activities, Activity(wallet, ra))
	}
	return b
}

// Trade normalizes a raw trade. It reports false when the trade has no
// usable quantity or price, or when either is negative.
func Trade(wallet string, rt model.RawTrade) (model.Trade, bool) {
	qty, ok := Quantity(rt)
	if !ok || rt.Price == nil || rt.Price.IsNegative() {
		return model.Trade{}, false
	}

	t := model.Trade{
		Wallet:    wallet,
		MarketID:  strings.TrimSpace(rt.MarketID),
		Side:      ParseSide(rt.Side),
		Held:      heldOutcome(rt.Outcome),
		Quantity:  qty,
		Price:     *rt.Price,
		Timestamp: rt.Timestamp,
	}
	if rt.PnL != nil {
		pnl := *rt.PnL
		t.PnL = &pnl
	}
	return t, true
}

// Quantity returns the share quantity of a trade, preferring the
// pre-normalized field over the raw base-unit field.
func Quantity(rt model.RawTrade) (decimal.Decimal, bool) {
	var qty decimal.Decimal
	switch {
	case rt.SharesNormalized != nil:
		qty = *rt.SharesNormalized
	case rt.Shares != nil:
		qty = rt.Shares.Shift(-ShareScale)
	default:
		return decimal.Zero, false
	}
	if qty.IsNegative() {
		return decimal.Zero, false
	}
	return qty, true
}

// ParseSide case-normalizes a trade side. Unrecognized values map to
// SideUnknown.
func ParseSide(raw string) model.Side {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY":
		return model.SideBuy
	case "SELL":
		return model.SideSell
	default:
		return model.SideUnknown
	}
}

// heldOutcome defaults to YES for trades that do not name an outcome.
func heldOutcome(raw string) model.Outcome {
	if strings.TrimSpace(raw) == "" {
		return model.OutcomeYes
	}
	return model.ParseOutcome(raw)
}

// Position normalizes a raw position. Missing realized PnL counts as zero;
// missing cash PnL is left nil for the reconciler to judge.
func Position(wallet string, rp model.RawPosition) model.Position {
	p := model.Position{
		Wallet:       wallet,
		MarketID:     strings.TrimSpace(rp.MarketID),
		InitialValue: rp.InitialValue,
		CurrentValue: rp.CurrentValue,
		UpdatedAt:    rp.UpdatedAt,
	}
	if rp.RealizedPnL != nil {
		p.RealizedPnL = *rp.RealizedPnL
	}
	if rp.CashPnL != nil {
		cash := *rp.CashPnL
		p.CashPnL = &cash
	}
	return p
}

// Activity normalizes a raw activity.
func Activity(wallet string, ra model.RawActivity) model.Activity {
	return model.Activity{
		Wallet:    wallet,
		Kind:      ParseActivityKind(ra.Kind),
		Amount:    ra.Amount,
		Timestamp: ra.Timestamp,
	}
}

// ParseActivityKind maps an activity type onto REWARD, REDEEM or OTHER.
func ParseActivityKind(raw string) model.ActivityKind {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "REWARD":
		return model.ActivityReward
	case "REDEEM":
		return model.ActivityRedeem
	default:
		return model.ActivityOther
	}
}
