// Command directory serves the business directory over HTTP.
//
// The companies JSONL file is indexed in memory on first use and rebuilt
// whenever it changes. Redis (response cache), Kafka (reload fan-out and
// analytics events) and Meilisearch (search accelerator) are optional;
// without them the service answers from the in-memory index alone.
//
// Usage:
//
//	go run ./cmd/directory [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/accelerator"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/cache"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/handler"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/query"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/reload"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/store"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/logo"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/tracing"
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
	tracing.Configure(cfg.Tracing.Enabled, cfg.Tracing.SampleRate)
	slog.Info("starting directory service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	normalizer := region.Default()
	if cfg.Directory.RegionRules != "" {
		normalizer, err = region.Load(cfg.Directory.RegionRules)
		if err != nil {
			slog.Error("failed to load region rules", "path", cfg.Directory.RegionRules, "error", err)
			os.Exit(1)
		}
	}

	st := store.New(store.Options{
		Candidates: cfg.Directory.DataPathCandidates(),
		Normalizer: normalizer,
		Metrics:    m,
	})
	engine := query.New(st, cfg.Directory.CategoryIcons, query.Limits{
		DefaultLimit: cfg.Directory.DefaultLimit,
		MaxLimit:     cfg.Directory.MaxLimit,
		SuggestLimit: cfg.Directory.SuggestLimit,
		MaxSuggest:   cfg.Directory.MaxSuggest,
	}, m)

	// Warm the index so the first request does not pay for the build.
	go func() {
		if _, err := st.Get(ctx); err != nil {
			slog.Warn("initial index build failed", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("index", indexCheck(st))
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m, checker.LiveHandler())
		defer shutdownMetrics(context.Background())
	}

	var responseCache *cache.ResponseCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, response caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			responseCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			slog.Info("response cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	if redisClient != nil {
		checker.RegisterOptional("redis", health.Ping(redisClient.Ping))
	} else {
		checker.RegisterOptional("redis", health.Disabled("not configured"))
	}

	var accel *accelerator.Client
	if cfg.Accelerator.Enabled {
		accel = accelerator.New(accelerator.Config{
			Host:      cfg.Accelerator.Host,
			APIKey:    cfg.Accelerator.APIKey,
			Index:     cfg.Accelerator.Index,
			Timeout:   cfg.Accelerator.Timeout,
			BatchSize: cfg.Accelerator.BatchSize,
		}, m)
		checker.RegisterOptional("accelerator", func(ctx context.Context) health.ComponentHealth {
			details := map[string]any{"circuit": accel.BreakerState().String(), "index": accel.IndexName()}
			if err := accel.Health(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error(), Details: details}
			}
			return health.ComponentHealth{Status: health.StatusUp, Details: details}
		})
		slog.Info("search accelerator enabled", "host", cfg.Accelerator.Host, "index", cfg.Accelerator.Index)
	} else {
		checker.RegisterOptional("accelerator", health.Disabled("not configured"))
	}

	origin := replicaID()
	agg := analytics.NewAggregator()
	var (
		reloadPublisher reload.Publisher
		eventPublisher  analytics.BatchPublisher
		consumers       sync.WaitGroup
	)
	if cfg.Kafka.Enabled {
		reloadProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DirectoryReload)
		defer reloadProducer.Close()
		eventProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer eventProducer.Close()
		reloadPublisher, eventPublisher = reloadProducer, eventProducer
		checker.RegisterOptional("kafka", health.Ping(reloadProducer.Ping))
	} else {
		checker.RegisterOptional("kafka", health.Disabled("not configured"))
	}

	coordinator := reload.NewCoordinator(origin, reloadPublisher,
		reload.InvalidatorFunc(func(context.Context) error {
			st.Invalidate()
			return nil
		}),
		responseCache,
	)
	if cfg.Kafka.Enabled {
		// Reloads are broadcast: every replica needs its own group.
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DirectoryReload, cfg.Kafka.ConsumerGroup+"-"+origin, coordinator.Handler())
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := consumer.Start(ctx); err != nil {
				slog.Error("reload consumer error", "error", err)
			}
		}()
	}

	collector := analytics.NewCollector(eventPublisher, agg, analytics.CollectorConfig{BufferSize: cfg.Analytics.BufferSize})
	collector.Start(ctx)
	defer collector.Close()

	// Without a broker no aggregation service sees this replica's events,
	// so snapshots are taken here.
	var snapshots analytics.SnapshotLister
	if !cfg.Kafka.Enabled {
		snapStore, closeStore, err := aggregator.Open(ctx, cfg.Analytics, cfg.Postgres)
		if err != nil {
			slog.Warn("analytics store unavailable, snapshots disabled", "store", cfg.Analytics.Store, "error", err)
		} else if snapStore != nil {
			defer closeStore()
			snapshots = snapStore
			saved := snapStore.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
			defer func() { <-saved }()
			checker.RegisterOptional("analytics_store", health.Ping(snapStore.Ping))
		}
	}

	var accelDep handler.Accelerator
	if accel != nil {
		accelDep = accel
	}
	logos := logo.New(logo.Config{
		CacheDir:        cfg.Logo.CacheDir,
		TTL:             cfg.Logo.TTL,
		MaxBytes:        cfg.Logo.MaxBytes,
		UpstreamTimeout: cfg.Logo.UpstreamTimeout,
		AllowedHost:     cfg.Logo.AllowedHost,
		UserAgent:       cfg.Logo.UserAgent,
	}, m)
	h := handler.New(handler.Deps{
		Engine:        engine,
		Snapshots:     st,
		Normalizer:    normalizer,
		Icons:         cfg.Directory.CategoryIcons,
		Cache:         responseCache,
		Reload:        coordinator,
		Accelerator:   accelDep,
		Logo:          logos,
		Collector:     collector,
		MaxSummaryIDs: cfg.Directory.MaxSummaryIDs,
		ExportMaxRows: cfg.Directory.ExportMaxRows,
	})
	analyticsH := analytics.NewHandler(agg, snapshots)

	limiter := middleware.NewLimiter(cfg.Admin.RateLimit, cfg.Admin.Burst)
	admin := func(next http.Handler) http.Handler {
		return middleware.Chain(next, middleware.RateLimit(limiter), middleware.AdminAuth(cfg.Admin.Secret))
	}
	public := middleware.Timeout(cfg.Server.WriteTimeout)

	mux := http.NewServeMux()
	h.Register(mux, public, admin)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsH.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.CORS(middleware.CORSConfig{
			AllowOrigins: cfg.Server.AllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		}),
	)

	// No write timeout: public routes carry their own and admin reindex
	// runs for minutes.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     chain,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: 2 * time.Minute,
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

	slog.Info("directory service listening", "addr", server.Addr, "replica", origin)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	consumers.Wait()
	slog.Info("directory service stopped")
}

// indexCheck is down until a snapshot is loaded and degraded while a stale
// snapshot is served after a failed rebuild.
func indexCheck(st *store.Store) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if _, err := st.Get(ctx); err != nil && st.Current() == nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		status := st.Status()
		details := map[string]any{
			"records":     status.Records,
			"seq":         status.Seq,
			"source_path": status.Path,
		}
		if status.Stale {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: status.LastError, Details: details}
		}
		return health.ComponentHealth{Status: health.StatusUp, Details: details}
	}
}

func replicaID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "replica"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
