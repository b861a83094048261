// Package main provides the RAG dashboard server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linkeLi0421/Epstein-Rag/internal/bus"
	"github.com/linkeLi0421/Epstein-Rag/internal/config"
	"github.com/linkeLi0421/Epstein-Rag/internal/db"
	"github.com/linkeLi0421/Epstein-Rag/internal/metrics"
	"github.com/linkeLi0421/Epstein-Rag/internal/server"
	"github.com/linkeLi0421/Epstein-Rag/internal/service"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	slog.SetDefault(logger)
	defer func() {
		if err := closeLog(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()

	slog.Info("starting dashboard-server", "port", cfg.Port)

	// Connect to the database
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	if *wipeDB || os.Getenv("DASHBOARD_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := store.WipeData(ctx); err != nil {
			cancel()
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		cancel()
	}

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.InitSchema(ctx); err != nil {
		cancel()
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	cancel()

	// Wire services
	eventBus := bus.New(logger)
	collector := metrics.NewCollector()
	jobs := service.NewJobManager(store, eventBus, collector, logger)
	queries := service.NewQueryLogService(store, eventBus, collector, logger)
	health := service.NewHealthService(store, eventBus, collector, logger)

	// Background health monitor
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go health.Run(monitorCtx, cfg.HealthCheckInterval)

	srv := server.New(cfg, jobs, queries, health, eventBus, collector, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("dashboard API available", "url", "http://localhost:"+cfg.Port+"/api/dashboard")
		slog.Info("realtime channel available", "url", "ws://localhost:"+cfg.Port+"/ws/dashboard")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	stopMonitor()

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
