// Command collector starts the snapshot collector service.
//
// It consumes community snapshot events from Kafka, keeps the latest snapshot
// per community in memory, archives every snapshot to PostgreSQL, and serves
// an HTTP API: GET /api/v1/overview (market aggregate), GET /api/v1/communities
// (latest snapshots), GET /api/v1/communities/{name} (one community), and
// GET /api/v1/report (competitive report text).
//
// Usage:
//
//	go run ./cmd/collector [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/commpulse/community-pulse/internal/archive"
	"github.com/commpulse/community-pulse/internal/collector"
	"github.com/commpulse/community-pulse/pkg/config"
	"github.com/commpulse/community-pulse/pkg/health"
	"github.com/commpulse/community-pulse/pkg/kafka"
	"github.com/commpulse/community-pulse/pkg/logger"
	"github.com/commpulse/community-pulse/pkg/metrics"
	"github.com/commpulse/community-pulse/pkg/middleware"
	"github.com/commpulse/community-pulse/pkg/postgres"
)

// main boots the collector service: PostgreSQL archive, Kafka consumer,
// in-memory aggregator, health checks, Prometheus metrics, and the HTTP API.
// Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting collector service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")
	store := archive.NewStore(db)

	aggregator := collector.NewAggregator(store, m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SnapshotEvents,
		collector.HandleEvent(aggregator))
	aggregator.SetConsumer(consumer)

	go func() {
		if err := aggregator.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("snapshot aggregator started", "topic", cfg.Kafka.Topics.SnapshotEvents)

	if cfg.Analysis.Retention > 0 {
		go pruneLoop(ctx, store, cfg.Analysis.Retention)
	}

	h := collector.NewHandler(aggregator, m)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/overview", h.Overview)
	mux.HandleFunc("GET /api/v1/communities", h.Communities)
	mux.HandleFunc("GET /api/v1/communities/{name}", h.Community)
	mux.HandleFunc("GET /api/v1/report", h.Report)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("collector service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("collector service stopped")
}

// pruneLoop deletes archived snapshots older than the retention window once
// an hour until ctx is cancelled.
func pruneLoop(ctx context.Context, store *archive.Store, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := store.Prune(ctx, time.Now().Add(-retention)); err != nil {
				slog.Error("snapshot prune failed", "error", err)
			}
		}
	}
}
