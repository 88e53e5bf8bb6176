// Package metrics provides Prometheus instrumentation for the ranking engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WalletEvaluations counts wallet evaluations by outcome (ok, partial, error).
	WalletEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_wallet_evaluations_total",
		Help: "Total wallet evaluations",
	}, []string{"outcome"})

	// EvaluationLatency tracks fetch plus scoring time for one wallet.
	EvaluationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atmx_wallet_evaluation_seconds",
		Help:    "Wallet evaluation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// MalformedRecords counts raw records skipped during normalization.
	MalformedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_malformed_records_total",
		Help: "Raw records skipped as malformed",
	}, []string{"kind"})

	LeaderboardRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_leaderboard_requests_total",
		Help: "Leaderboard computations by metric and period",
	}, []string{"metric", "period"})

	LeaderboardLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atmx_leaderboard_seconds",
		Help:    "Leaderboard computation latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"metric"})

	// LeaderboardSkippedWallets counts candidates dropped after an upstream failure.
	LeaderboardSkippedWallets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_leaderboard_skipped_wallets_total",
		Help: "Leaderboard candidates skipped after upstream failures",
	})

	// ProviderRequests counts upstream API calls by endpoint and status.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_provider_requests_total",
		Help: "Upstream provider requests",
	}, []string{"endpoint", "status"})

	// ProviderBreakerState is 0 closed, 1 half-open, 2 open.
	ProviderBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "atmx_provider_breaker_state",
		Help: "Circuit breaker state of the upstream provider",
	}, []string{"name"})

	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_refresh_runs_total",
		Help: "Scheduled metric refresh runs by status",
	}, []string{"status"})

	// StoredWallets tracks the number of wallets with persisted metrics.
	StoredWallets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_stored_wallets",
		Help: "Wallets with persisted metrics",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atmx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
