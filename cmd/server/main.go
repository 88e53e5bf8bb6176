package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/atmx/ranking-engine/internal/api"
	"github.com/atmx/ranking-engine/internal/app"
	"github.com/atmx/ranking-engine/internal/config"
	"github.com/atmx/ranking-engine/internal/logging"
	"github.com/atmx/ranking-engine/internal/metrics"
	"github.com/atmx/ranking-engine/internal/refresh"
)

const serviceName = "ranking-engine"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(serviceName, cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Provider, store, engine ---
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	// --- Scheduled refresh ---
	scheduler := refresh.NewScheduler(logger)
	if cfg.Refresh.Enabled {
		job := &refresh.Job{
			Engine:    a.Engine,
			Publisher: wsHub,
			Seeds:     cfg.Refresh.Wallets,
			Timeout:   cfg.Refresh.Timeout,
			Logger:    logger,
		}
		if err := scheduler.AddJob(cfg.Refresh.Schedule, job); err != nil {
			slog.Error("invalid refresh schedule", "schedule", cfg.Refresh.Schedule, "err", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()

		// Warm the store with the seed wallets.
		go func() {
			if err := scheduler.RunNow(job); err != nil {
				slog.Warn("initial refresh failed", "err", err)
			}
		}()
	}

	// --- API service ---
	svc := api.NewService(a.Engine, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"` + serviceName + `"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		r.Mount("/", svc.Routes())
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("ranking-engine listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down ranking-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	stop()
	fmt.Println("ranking-engine stopped")
}
