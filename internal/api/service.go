// Package api provides the HTTP handlers for leaderboards, wallet metrics
// and tracked wallets.
//
// All monetary values use shopspring/decimal, never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/ranking-engine/internal/engine"
	"github.com/atmx/ranking-engine/internal/leaderboard"
	"github.com/atmx/ranking-engine/internal/model"
	"github.com/atmx/ranking-engine/internal/provider"
	"github.com/atmx/ranking-engine/internal/wallet"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Service handles leaderboard and wallet queries.
type Service struct {
	engine *engine.Engine
	wsHub  *WSHub // optional WebSocket hub for metric updates
	logger *slog.Logger
}

// NewService creates a new API service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(eng *engine.Engine, hub *WSHub) *Service {
	return &Service{engine: eng, wsHub: hub, logger: slog.Default()}
}

// Routes returns the /api/v1 sub-router.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/leaderboard", s.GetLeaderboard)
	r.Get("/wallets", s.ListWallets)
	r.Get("/wallets/{wallet}/metrics", s.GetWalletMetrics)
	r.Get("/wallets/{wallet}/categories", s.GetWalletCategories)
	r.Post("/wallets/{wallet}/track", s.TrackWallet)
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
	return r
}

// --- Response types ---

// WalletList is the JSON body of GET /wallets.
type WalletList struct {
	Count   int      `json:"count"`
	Wallets []string `json:"wallets"`
}

// CategoryList is the JSON body of GET /wallets/{wallet}/categories.
type CategoryList struct {
	Wallet     string                  `json:"wallet_address"`
	Categories []model.CategoryMetrics `json:"categories"`
}

// --- Handlers ---

// GetLeaderboard handles GET /api/v1/leaderboard.
// Query: metric (pnl|roi|win_rate|score), period (7d|30d|all), limit,
// wallets (comma separated; defaults to tracked wallets).
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	metric, err := leaderboard.ParseMetric(q.Get("metric"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	window, err := leaderboard.ParseWindow(q.Get("period"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	candidates := splitWallets(q.Get("wallets"))
	if len(candidates) == 0 {
		candidates, err = s.engine.TrackedWallets(r.Context())
		if err != nil {
			s.logger.Error("list tracked wallets", "error", err)
			writeError(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	board, err := s.engine.RankLeaderboard(r.Context(), candidates, metric, window, limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(board)
}

// ListWallets handles GET /api/v1/wallets.
func (s *Service) ListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.engine.TrackedWallets(r.Context())
	if err != nil {
		s.logger.Error("list tracked wallets", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(WalletList{Count: len(wallets), Wallets: wallets})
}

// GetWalletMetrics handles GET /api/v1/wallets/{wallet}/metrics.
// refresh=true recomputes from the provider instead of reading the store.
func (s *Service) GetWalletMetrics(w http.ResponseWriter, r *http.Request) {
	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, "refresh must be a boolean", http.StatusBadRequest)
			return
		}
		refresh = v
	}

	m, err := s.engine.Metrics(r.Context(), chi.URLParam(r, "wallet"), refresh)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !engine.HasRecords(m) {
		writeError(w, "no records for wallet", http.StatusNotFound)
		return
	}
	if refresh && s.wsHub != nil {
		s.wsHub.PublishMetrics(m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

// GetWalletCategories handles GET /api/v1/wallets/{wallet}/categories.
func (s *Service) GetWalletCategories(w http.ResponseWriter, r *http.Request) {
	addr, err := wallet.ParseAddress(chi.URLParam(r, "wallet"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	cats, err := s.engine.AggregateByCategory(r.Context(), addr)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CategoryList{Wallet: addr, Categories: cats})
}

// TrackWallet handles POST /api/v1/wallets/{wallet}/track. The wallet is
// evaluated immediately and kept for scheduled refreshes. Wallets without
// records are not tracked.
func (s *Service) TrackWallet(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Evaluate(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !engine.HasRecords(m) {
		writeError(w, "no records for wallet", http.StatusNotFound)
		return
	}

	if s.wsHub != nil {
		s.wsHub.PublishMetrics(m)
	}

	s.logger.Info("wallet tracked", "wallet", wallet.Short(m.Wallet), "final_score", m.FinalScore)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(m)
}

// --- Helpers ---

func (s *Service) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wallet.ErrEmptyAddress), errors.Is(err, wallet.ErrInvalidAddress):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, provider.ErrUpstreamUnavailable):
		s.logger.Warn("upstream unavailable", "error", err)
		writeError(w, "upstream data source unavailable", http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, "request timed out", http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		writeError(w, "request canceled", http.StatusServiceUnavailable)
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func splitWallets(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
