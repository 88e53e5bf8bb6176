// Package model defines the core domain types shared across the ranking engine.
// All monetary values use shopspring/decimal, never float64 for money.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawTrade is a trade record as yielded by the Provider. Immutable once
// fetched; optional numeric fields are nil when the source omits them.
type RawTrade struct {
	Wallet           string           `json:"wallet"`
	MarketID         string           `json:"market_id"` // market slug
	Side             string           `json:"side"`      // "BUY" or "SELL", any case
	Outcome          string           `json:"outcome,omitempty"`
	SharesNormalized *decimal.Decimal `json:"shares_normalized,omitempty"`
	Shares           *decimal.Decimal `json:"shares,omitempty"` // base units, scale 10^6
	Price            *decimal.Decimal `json:"price,omitempty"`
	PnL              *decimal.Decimal `json:"pnl,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
	Name             string           `json:"name,omitempty"`
	Pseudonym        string           `json:"pseudonym,omitempty"`
	ProfileImage     string           `json:"profile_image,omitempty"`
}

// RawPosition is a position snapshot as yielded by the Provider.
// cashPnl = realizedPnl + unrealizedPnl while the position is open.
type RawPosition struct {
	Wallet       string           `json:"wallet"`
	MarketID     string           `json:"market_id"`
	InitialValue decimal.Decimal  `json:"initial_value"`
	CurrentValue decimal.Decimal  `json:"current_value"`
	CashPnL      *decimal.Decimal `json:"cash_pnl,omitempty"`
	RealizedPnL  *decimal.Decimal `json:"realized_pnl,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at,omitempty"` // zero if unknown
}

// RawActivity is an account activity (reward, redemption, ...).
type RawActivity struct {
	Wallet    string          `json:"wallet"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// WalletRecords bundles one wallet's raw collections together with the
// market data needed to score them. Resolutions and Markets are keyed by
// market ID; a missing key means unresolved / unknown.
type WalletRecords struct {
	Trades      []RawTrade            `json:"trades"`
	Positions   []RawPosition         `json:"positions"`
	Activities  []RawActivity         `json:"activities"`
	Resolutions map[string]Resolution `json:"resolutions,omitempty"`
	Markets     map[string]MarketMeta `json:"markets,omitempty"`
}

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes     Outcome = "YES"
	OutcomeNo      Outcome = "NO"
	OutcomeUnknown Outcome = ""
)

// ParseOutcome maps the textual forms used by the venue onto YES/NO.
// Anything else is OutcomeUnknown.
func ParseOutcome(raw string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "YES", "1", "TRUE":
		return OutcomeYes
	case "NO", "0", "FALSE":
		return OutcomeNo
	default:
		return OutcomeUnknown
	}
}

// Resolution is the settled state of a market. The zero value means the
// market is still open.
type Resolution struct {
	Winner Outcome `json:"winner,omitempty"`
}

// Unresolved is the resolution of an open market.
var Unresolved = Resolution{}

// ResolvedTo returns a resolution with the given winner.
func ResolvedTo(o Outcome) Resolution { return Resolution{Winner: o} }

// Resolved reports whether the market has a known winning outcome.
func (r Resolution) Resolved() bool {
	return r.Winner == OutcomeYes || r.Winner == OutcomeNo
}

// DefaultCategory is used when a market carries no category.
const DefaultCategory = "Uncategorized"

// MarketMeta is the market metadata consumed by scoring and categories.
type MarketMeta struct {
	ID         string     `json:"id"`
	Category   string     `json:"category,omitempty"`
	Resolution Resolution `json:"resolution"`
}

// CategoryName returns the market category or DefaultCategory.
func (m MarketMeta) CategoryName() string {
	if c := strings.TrimSpace(m.Category); c != "" {
		return c
	}
	return DefaultCategory
}
