package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the normalized trade direction.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = ""
)

// Trade is a normalized trade. PnL is nil unless the source supplied it.
type Trade struct {
	Wallet    string           `json:"wallet"`
	MarketID  string           `json:"market_id"`
	Side      Side             `json:"side"`
	Held      Outcome          `json:"held"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
	PnL       *decimal.Decimal `json:"pnl,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Seq       int              `json:"seq"` // provider order
}

// Stake is the money committed to the trade (quantity × price).
func (t Trade) Stake() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// Position is a normalized position snapshot.
type Position struct {
	Wallet       string           `json:"wallet"`
	MarketID     string           `json:"market_id"`
	InitialValue decimal.Decimal  `json:"initial_value"`
	CurrentValue decimal.Decimal  `json:"current_value"`
	CashPnL      *decimal.Decimal `json:"cash_pnl,omitempty"`
	RealizedPnL  decimal.Decimal  `json:"realized_pnl"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Closed reports whether the position holds no current value.
func (p Position) Closed() bool {
	return p.CurrentValue.IsZero()
}

// ActivityKind classifies account activities.
type ActivityKind string

const (
	ActivityReward ActivityKind = "REWARD"
	ActivityRedeem ActivityKind = "REDEEM"
	ActivityOther  ActivityKind = "OTHER"
)

// Activity is a normalized account activity.
type Activity struct {
	Wallet    string          `json:"wallet"`
	Kind      ActivityKind    `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Profile holds the display fields of a wallet.
type Profile struct {
	Name         string `json:"name,omitempty"`
	Pseudonym    string `json:"pseudonym,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// IsZero reports whether no display field is set.
func (p Profile) IsZero() bool {
	return p.Name == "" && p.Pseudonym == "" && p.ProfileImage == ""
}
