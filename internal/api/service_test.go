package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/ranking-engine/internal/api"
	"github.com/atmx/ranking-engine/internal/engine"
	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/provider"
	"github.com/atmx/ranking-engine/internal/store"
)

var (
	walletA = "0x" + strings.Repeat("a", 40)
	walletB = "0x" + strings.Repeat("b", 40)
	walletC = "0x" + strings.Repeat("c", 40)
	now     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func dp(f float64) *decimal.Decimal {
	v := decimal.NewFromFloat(f)
	return &v
}

// newTestEnv creates a Service over an in-memory provider and store,
// mounted on a chi router.
func newTestEnv(t *testing.T) (*provider.MemoryProvider, *store.MemoryStore, chi.Router) {
	t.Helper()
	p := provider.NewMemoryProvider()
	p.AddMarket(model.MarketMeta{ID: "rain-nyc", Category: "Weather", Resolution: model.ResolvedTo(model.OutcomeYes)})
	p.SetRecords(walletA, model.WalletRecords{
		Trades: []model.RawTrade{
			{MarketID: "rain-nyc", Side: "BUY", SharesNormalized: dp(10), Price: dp(0.5), PnL: dp(10), Timestamp: now.Add(-48 * time.Hour)},
		},
		Positions: []model.RawPosition{
			{MarketID: "rain-nyc", InitialValue: decimal.NewFromInt(5), CashPnL: dp(10), RealizedPnL: dp(10), UpdatedAt: now.Add(-48 * time.Hour)},
		},
	})
	p.SetRecords(walletB, model.WalletRecords{
		Trades: []model.RawTrade{
			{MarketID: "rain-nyc", Side: "BUY", SharesNormalized: dp(20), Price: dp(0.5), PnL: dp(30), Timestamp: now.Add(-20 * 24 * time.Hour)},
		},
		Positions: []model.RawPosition{
			{MarketID: "rain-nyc", InitialValue: decimal.NewFromInt(10), CashPnL: dp(30), RealizedPnL: dp(30), UpdatedAt: now.Add(-20 * 24 * time.Hour)},
		},
	})

	ms := store.NewMemoryStore()
	eng, err := engine.New(p, engine.WithStore(ms), engine.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	svc := api.NewService(eng, nil)

	r := chi.NewRouter()
	r.Mount("/api/v1", svc.Routes())
	return p, ms, r
}

func get(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func post(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- Leaderboard ---

func TestGetLeaderboard_ExplicitWallets(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := get(t, router, "/api/v1/leaderboard?metric=pnl&period=all&wallets="+walletA+","+walletB)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var board model.Leaderboard
	json.Unmarshal(w.Body.Bytes(), &board)

	if board.Period != "all" || board.Metric != "pnl" {
		t.Errorf("unexpected period/metric: %s/%s", board.Period, board.Metric)
	}
	if board.Count != 2 || len(board.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board.Entries))
	}
	if board.Entries[0].Wallet != walletB || board.Entries[0].Rank != 1 {
		t.Errorf("expected %s first, got %s", walletB, board.Entries[0].Wallet)
	}
}

func TestGetLeaderboard_WindowExcludesOldTrades(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := get(t, router, "/api/v1/leaderboard?period=7d&wallets="+walletA+","+walletB)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var board model.Leaderboard
	json.Unmarshal(w.Body.Bytes(), &board)

	if len(board.Entries) != 1 || board.Entries[0].Wallet != walletA {
		t.Errorf("expected only %s in 7d window, got %+v", walletA, board.Entries)
	}
}

func TestGetLeaderboard_DefaultsToTrackedWallets(t *testing.T) {
	_, _, router := newTestEnv(t)

	if w := post(t, router, "/api/v1/wallets/"+walletA+"/track"); w.Code != http.StatusCreated {
		t.Fatalf("track failed: %d %s", w.Code, w.Body.String())
	}

	w := get(t, router, "/api/v1/leaderboard")
	var board model.Leaderboard
	json.Unmarshal(w.Body.Bytes(), &board)

	if len(board.Entries) != 1 || board.Entries[0].Wallet != walletA {
		t.Errorf("expected tracked wallet only, got %+v", board.Entries)
	}
}

func TestGetLeaderboard_PartialOnUpstreamFailure(t *testing.T) {
	p, _, router := newTestEnv(t)
	p.FailWallet(walletC, provider.ErrUpstreamUnavailable)

	w := get(t, router, "/api/v1/leaderboard?wallets="+walletA+","+walletC)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var board model.Leaderboard
	json.Unmarshal(w.Body.Bytes(), &board)

	if !board.Partial {
		t.Error("expected partial leaderboard")
	}
	if len(board.SkippedWallets) != 1 || board.SkippedWallets[0] != walletC {
		t.Errorf("expected %s skipped, got %v", walletC, board.SkippedWallets)
	}
}

func TestGetLeaderboard_BadParams(t *testing.T) {
	_, _, router := newTestEnv(t)

	for _, path := range []string{
		"/api/v1/leaderboard?metric=volume",
		"/api/v1/leaderboard?period=1y",
		"/api/v1/leaderboard?limit=0",
		"/api/v1/leaderboard?limit=ten",
		"/api/v1/leaderboard?wallets=0x123",
	} {
		w := get(t, router, path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
		var body map[string]string
		json.Unmarshal(w.Body.Bytes(), &body)
		if body["error"] == "" {
			t.Errorf("%s: expected error message", path)
		}
	}
}

// --- Wallets ---

func TestGetWalletMetrics(t *testing.T) {
	_, ms, router := newTestEnv(t)

	w := get(t, router, "/api/v1/wallets/"+strings.ToUpper(walletA[2:])+"/metrics")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without 0x prefix, got %d", w.Code)
	}

	w = get(t, router, "/api/v1/wallets/"+walletA+"/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var m model.WalletMetrics
	json.Unmarshal(w.Body.Bytes(), &m)

	if m.Wallet != walletA {
		t.Errorf("expected wallet %s, got %s", walletA, m.Wallet)
	}
	if !m.TotalPnL.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected total_pnl 10, got %s", m.TotalPnL)
	}
	if m.TotalTrades != 1 {
		t.Errorf("expected 1 trade, got %d", m.TotalTrades)
	}

	if _, ok, _ := ms.GetCachedMetrics(context.Background(), walletA); ok {
		t.Error("expected a read not to track the wallet")
	}

	w = get(t, router, "/api/v1/leaderboard")
	var board model.Leaderboard
	json.Unmarshal(w.Body.Bytes(), &board)
	if board.Count != 0 {
		t.Errorf("expected empty default leaderboard after reads, got %d entries", board.Count)
	}
}

func TestGetWalletMetrics_UnknownWallet(t *testing.T) {
	_, ms, router := newTestEnv(t)

	w := get(t, router, "/api/v1/wallets/"+walletC+"/metrics")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w = post(t, router, "/api/v1/wallets/"+walletC+"/track")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 tracking a wallet without records, got %d", w.Code)
	}

	wallets, err := ms.ListWallets(context.Background())
	if err != nil {
		t.Fatalf("list wallets: %v", err)
	}
	if len(wallets) != 0 {
		t.Errorf("expected no stored wallets, got %v", wallets)
	}
}

func TestGetWalletMetrics_Upstream(t *testing.T) {
	p, _, router := newTestEnv(t)
	p.FailWallet(walletA, provider.ErrUpstreamUnavailable)

	w := get(t, router, "/api/v1/wallets/"+walletA+"/metrics?refresh=true")
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}

	w = get(t, router, "/api/v1/wallets/"+walletA+"/metrics?refresh=often")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad refresh flag, got %d", w.Code)
	}
}

func TestGetWalletCategories(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := get(t, router, "/api/v1/wallets/"+walletA+"/categories")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var list api.CategoryList
	json.Unmarshal(w.Body.Bytes(), &list)

	if len(list.Categories) != 1 || list.Categories[0].Category != "Weather" {
		t.Fatalf("expected Weather category, got %+v", list.Categories)
	}
	if list.Categories[0].Wins != 1 {
		t.Errorf("expected 1 win, got %d", list.Categories[0].Wins)
	}
}

func TestTrackWallet_ListWallets(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := get(t, router, "/api/v1/wallets")
	var list api.WalletList
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Count != 0 {
		t.Fatalf("expected no tracked wallets, got %d", list.Count)
	}

	for _, addr := range []string{walletB, "0x" + strings.ToUpper(walletA[2:])} {
		if w := post(t, router, "/api/v1/wallets/"+addr+"/track"); w.Code != http.StatusCreated {
			t.Fatalf("track %s: %d %s", addr, w.Code, w.Body.String())
		}
	}

	w = get(t, router, "/api/v1/wallets")
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Count != 2 || list.Wallets[0] != walletA || list.Wallets[1] != walletB {
		t.Errorf("expected sorted [A B], got %v", list.Wallets)
	}
}
