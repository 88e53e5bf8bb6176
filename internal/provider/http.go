package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/atmx/ranking-engine/internal/metrics"
	"github.com/atmx/ranking-engine/internal/model"
)

// Public venue endpoints.
const (
	DefaultDataAPIURL  = "https://data-api.polymarket.com"
	DefaultGammaAPIURL = "https://gamma-api.polymarket.com"
)

// HTTPConfig configures the venue API client.
type HTTPConfig struct {
	DataAPIURL        string
	GammaAPIURL       string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	PageSize          int
	MaxPages          int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
}

// DefaultHTTPConfig returns conservative client settings.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		DataAPIURL:        DefaultDataAPIURL,
		GammaAPIURL:       DefaultGammaAPIURL,
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		PageSize:          500,
		MaxPages:          20,
		BreakerFailures:   5,
		BreakerTimeout:    30 * time.Second,
	}
}

// HTTPProvider implements Provider and MarketCatalog against the venue's
// public data and gamma APIs. Requests are paced by a token bucket and
// guarded by a circuit breaker; retries are left to the caller.
//
// The positions feed only carries a timestamp for closed positions. Open
// positions come back with a zero UpdatedAt, so window filters keep them
// and 7d/30d boards include their all-time position PnL.
type HTTPProvider struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPProvider creates a venue API provider.
func NewHTTPProvider(cfg HTTPConfig, logger *slog.Logger) *HTTPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultHTTPConfig()
	if cfg.DataAPIURL == "" {
		cfg.DataAPIURL = def.DataAPIURL
	}
	if cfg.GammaAPIURL == "" {
		cfg.GammaAPIURL = def.GammaAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	p := &HTTPProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "venue-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.ProviderBreakerState.WithLabelValues(name).Set(float64(to))
			p.logger.Warn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

// --- Wire types ---

type apiTrade struct {
	ProxyWallet  string           `json:"proxyWallet"`
	Side         string           `json:"side"`
	Slug         string           `json:"slug"`
	ConditionID  string           `json:"conditionId"`
	Outcome      string           `json:"outcome"`
	Size         *decimal.Decimal `json:"size"`
	Price        *decimal.Decimal `json:"price"`
	Timestamp    int64            `json:"timestamp"`
	Name         string           `json:"name"`
	Pseudonym    string           `json:"pseudonym"`
	ProfileImage string           `json:"profileImage"`
}

type apiPosition struct {
	ProxyWallet  string           `json:"proxyWallet"`
	Slug         string           `json:"slug"`
	ConditionID  string           `json:"conditionId"`
	InitialValue decimal.Decimal  `json:"initialValue"`
	CurrentValue decimal.Decimal  `json:"currentValue"`
	CashPnL      *decimal.Decimal `json:"cashPnl"`
	RealizedPnL  *decimal.Decimal `json:"realizedPnl"`
	Timestamp    int64            `json:"timestamp"`
}

type apiActivity struct {
	ProxyWallet string          `json:"proxyWallet"`
	Type        string          `json:"type"`
	UsdcSize    decimal.Decimal `json:"usdcSize"`
	Timestamp   int64           `json:"timestamp"`
}

type apiMarket struct {
	Slug           string `json:"slug"`
	Category       string `json:"category"`
	Closed         bool   `json:"closed"`
	Outcomes       string `json:"outcomes"`      // JSON-encoded list
	OutcomePrices  string `json:"outcomePrices"` // JSON-encoded list
	WinningOutcome string `json:"winningOutcome"`
	Tags           []struct {
		Label string `json:"label"`
	} `json:"tags"`
}

// marketID prefers the slug; older records only carry the condition id.
func marketID(slug, conditionID string) string {
	if slug != "" {
		return slug
	}
	return conditionID
}

// --- Provider ---

func (p *HTTPProvider) FetchTrades(ctx context.Context, wallet string) ([]model.RawTrade, error) {
	var out []model.RawTrade
	err := p.paginate(ctx, "trades", wallet, func(body []byte) (int, error) {
		var page []apiTrade
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, err
		}
		for _, t := range page {
			out = append(out, model.RawTrade{
				Wallet:           wallet,
				MarketID:         marketID(t.Slug, t.ConditionID),
				Side:             t.Side,
				Outcome:          t.Outcome,
				SharesNormalized: t.Size,
				Price:            t.Price,
				Timestamp:        time.Unix(t.Timestamp, 0).UTC(),
				Name:             t.Name,
				Pseudonym:        t.Pseudonym,
				ProfileImage:     t.ProfileImage,
			})
		}
		return len(page), nil
	})
	return out, err
}

func (p *HTTPProvider) FetchPositions(ctx context.Context, wallet string) ([]model.RawPosition, error) {
	var out []model.RawPosition
	err := p.paginate(ctx, "positions", wallet, func(body []byte) (int, error) {
		var page []apiPosition
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, err
		}
		for _, pos := range page {
			rp := model.RawPosition{
				Wallet:       wallet,
				MarketID:     marketID(pos.Slug, pos.ConditionID),
				InitialValue: pos.InitialValue,
				CurrentValue: pos.CurrentValue,
				CashPnL:      pos.CashPnL,
				RealizedPnL:  pos.RealizedPnL,
			}
			if pos.Timestamp > 0 {
				rp.UpdatedAt = time.Unix(pos.Timestamp, 0).UTC()
			}
			out = append(out, rp)
		}
		return len(page), nil
	})
	return out, err
}

func (p *HTTPProvider) FetchActivities(ctx context.Context, wallet string) ([]model.RawActivity, error) {
	var out []model.RawActivity
	err := p.paginate(ctx, "activity", wallet, func(body []byte) (int, error) {
		var page []apiActivity
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, err
		}
		for _, a := range page {
			out = append(out, model.RawActivity{
				Wallet:    wallet,
				Kind:      a.Type,
				Amount:    a.UsdcSize,
				Timestamp: time.Unix(a.Timestamp, 0).UTC(),
			})
		}
		return len(page), nil
	})
	return out, err
}

func (p *HTTPProvider) FetchMarketResolution(ctx context.Context, id string) (model.Resolution, error) {
	m, err := p.FetchMarket(ctx, id)
	if err != nil {
		return model.Unresolved, err
	}
	return m.Resolution, nil
}

// FetchMarket looks a market up by slug on the gamma API.
func (p *HTTPProvider) FetchMarket(ctx context.Context, id string) (model.MarketMeta, error) {
	q := url.Values{}
	q.Set("slug", id)
	body, err := p.get(ctx, "markets", p.cfg.GammaAPIURL+"/markets?"+q.Encode())
	if errors.Is(err, errNotFound) {
		return model.MarketMeta{}, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	if err != nil {
		return model.MarketMeta{}, err
	}

	var markets []apiMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return model.MarketMeta{}, fmt.Errorf("%w: decode markets: %w", ErrUpstreamUnavailable, err)
	}
	if len(markets) == 0 {
		return model.MarketMeta{}, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}

	m := markets[0]
	meta := model.MarketMeta{
		ID:         id,
		Category:   m.Category,
		Resolution: resolutionOf(m),
	}
	if meta.Category == "" && len(m.Tags) > 0 {
		meta.Category = m.Tags[0].Label
	}
	return meta, nil
}

// resolutionOf reads the winner of a closed market from an explicit
// winning outcome or from the outcome whose settled price is 1.
func resolutionOf(m apiMarket) model.Resolution {
	if !m.Closed {
		return model.Unresolved
	}
	if o := model.ParseOutcome(m.WinningOutcome); o != model.OutcomeUnknown {
		return model.ResolvedTo(o)
	}

	var outcomes, prices []string
	if json.Unmarshal([]byte(m.Outcomes), &outcomes) != nil ||
		json.Unmarshal([]byte(m.OutcomePrices), &prices) != nil ||
		len(outcomes) != len(prices) {
		return model.Unresolved
	}
	one := decimal.NewFromInt(1)
	for i, raw := range prices {
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err == nil && price.Equal(one) {
			return model.ResolvedTo(model.ParseOutcome(outcomes[i]))
		}
	}
	return model.Unresolved
}

// --- Transport ---

// paginate walks limit/offset pages until a short page or MaxPages.
func (p *HTTPProvider) paginate(ctx context.Context, endpoint, wallet string, decode func([]byte) (int, error)) error {
	for page := 0; page < p.cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("user", wallet)
		q.Set("limit", strconv.Itoa(p.cfg.PageSize))
		q.Set("offset", strconv.Itoa(page*p.cfg.PageSize))

		body, err := p.get(ctx, endpoint, p.cfg.DataAPIURL+"/"+endpoint+"?"+q.Encode())
		if errors.Is(err, errNotFound) {
			return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, endpoint, err)
		}
		if err != nil {
			return err
		}
		n, err := decode(body)
		if err != nil {
			return fmt.Errorf("%w: decode %s: %w", ErrUpstreamUnavailable, endpoint, err)
		}
		if n < p.cfg.PageSize {
			return nil
		}
	}
	p.logger.Warn("pagination limit reached", "endpoint", endpoint, "wallet", wallet, "max_pages", p.cfg.MaxPages)
	return nil
}

var errNotFound = errors.New("provider: not found")

// get performs one paced, breaker-guarded GET and returns the body.
func (p *HTTPProvider) get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, errNotFound
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%s: status %d: %s", endpoint, resp.StatusCode, truncate(body, 200))
		}
		return body, nil
	})

	switch {
	case err == nil:
		metrics.ProviderRequests.WithLabelValues(endpoint, "ok").Inc()
		return result.([]byte), nil
	case errors.Is(err, errNotFound):
		metrics.ProviderRequests.WithLabelValues(endpoint, "not_found").Inc()
		return nil, err
	case ctx.Err() != nil:
		metrics.ProviderRequests.WithLabelValues(endpoint, "canceled").Inc()
		return nil, ctx.Err()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ProviderRequests.WithLabelValues(endpoint, "breaker_open").Inc()
	default:
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, endpoint, err)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
