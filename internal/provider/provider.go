// Package provider defines where raw wallet records come from.
// Implementations include the venue HTTP APIs, PostgreSQL tables filled by
// an ingester, and an in-memory provider (for tests and snapshot files).
package provider

import (
	"context"
	"errors"

	"github.com/atmx/ranking-engine/internal/model"
)

var (
	// ErrUpstreamUnavailable marks a failed fetch the caller may retry.
	ErrUpstreamUnavailable = errors.New("provider: upstream unavailable")
	// ErrMarketNotFound is returned when a market is unknown upstream.
	ErrMarketNotFound = errors.New("provider: market not found")
)

// Provider yields raw records for a wallet and market resolutions.
// Empty collections are valid results.
type Provider interface {
	FetchTrades(ctx context.Context, wallet string) ([]model.RawTrade, error)
	FetchPositions(ctx context.Context, wallet string) ([]model.RawPosition, error)
	FetchActivities(ctx context.Context, wallet string) ([]model.RawActivity, error)

	// FetchMarketResolution returns model.Unresolved for open markets.
	FetchMarketResolution(ctx context.Context, marketID string) (model.Resolution, error)
}

// MarketCatalog is implemented by providers that also know market
// metadata such as the category.
type MarketCatalog interface {
	FetchMarket(ctx context.Context, marketID string) (model.MarketMeta, error)
}
