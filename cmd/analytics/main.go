// Command analytics starts the standalone analytics aggregation service.
//
// It consumes directory query events published by every replica, aggregates
// them in memory (volume per operation and region, latency percentiles,
// cache hit rate, zero-result queries, top queries), persists periodic
// snapshots and serves them at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	if !cfg.Kafka.Enabled {
		slog.Error("analytics service needs kafka; enable it or rely on in-process analytics")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	agg := analytics.NewAggregator()
	checker := health.NewChecker()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m, checker.LiveHandler())
		defer shutdownMetrics(context.Background())
	}

	var snapshots analytics.SnapshotLister
	snapStore, closeStore, err := aggregator.Open(ctx, cfg.Analytics, cfg.Postgres)
	if err != nil {
		slog.Error("failed to open analytics store", "store", cfg.Analytics.Store, "error", err)
		os.Exit(1)
	}
	if snapStore != nil {
		defer closeStore()
		snapshots = snapStore
		saved := snapStore.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		defer func() { <-saved }()
		checker.Register("store", health.Ping(snapStore.Ping))
	} else {
		checker.RegisterOptional("store", health.Disabled("snapshots not persisted"))
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, cfg.Kafka.ConsumerGroup+"-analytics", analytics.HandleEvent(agg))
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	pinger := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer pinger.Close()
	checker.Register("kafka", health.Ping(pinger.Ping))

	analyticsHandler := analytics.NewHandler(agg, snapshots)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsHandler.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux, middleware.RequestID, middleware.Metrics(m))

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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-consumerDone
	slog.Info("analytics service stopped")
}
