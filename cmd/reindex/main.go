// Command reindex replaces the search accelerator's documents with the
// current companies file, then announces a reload so serving replicas drop
// cached responses.
//
// Usage:
//
//	go run ./cmd/reindex [-config configs/development.yaml] [-file companies.jsonl]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/accelerator"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/reload"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/store"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	file := flag.String("file", "", "companies JSONL file (default: first configured candidate that exists)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if !cfg.Accelerator.Enabled {
		slog.Error("accelerator is disabled in config")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	candidates := cfg.Directory.DataPathCandidates()
	if *file != "" {
		candidates = []string{*file}
	}
	wd, _ := os.Getwd()
	path, info, err := store.ResolveSource(wd, candidates)
	if err != nil {
		slog.Error("companies file not found", "error", err)
		os.Exit(1)
	}

	normalizer := region.Default()
	if cfg.Directory.RegionRules != "" {
		if normalizer, err = region.Load(cfg.Directory.RegionRules); err != nil {
			slog.Error("failed to load region rules", "path", cfg.Directory.RegionRules, "error", err)
			os.Exit(1)
		}
	}

	client := accelerator.New(accelerator.Config{
		Host:      cfg.Accelerator.Host,
		APIKey:    cfg.Accelerator.APIKey,
		Index:     cfg.Accelerator.Index,
		Timeout:   cfg.Accelerator.Timeout,
		BatchSize: cfg.Accelerator.BatchSize,
	}, nil)
	if err := client.Health(ctx); err != nil {
		slog.Error("accelerator unreachable", "host", cfg.Accelerator.Host, "error", err)
		os.Exit(1)
	}

	slog.Info("reindexing", "source", path, "size", info.Size(), "index", cfg.Accelerator.Index)
	res, err := client.ReindexFile(ctx, path, normalizer)
	if err != nil {
		slog.Error("reindex failed", "indexed", res.Indexed, "error", err)
		os.Exit(1)
	}
	slog.Info("reindex complete",
		"total", res.Total,
		"indexed", res.Indexed,
		"batches", res.Batches,
		"duration", res.Duration,
	)

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DirectoryReload)
		defer producer.Close()
		coordinator := reload.NewCoordinator("reindex-cli", producer)
		announced, err := coordinator.Reload(ctx, reload.Event{Reason: "reindex", RequestedBy: "cmd/reindex"})
		if err != nil || !announced.Broadcast {
			slog.Warn("reload announcement failed", "error", err, "warning", announced.Warning)
		}
	}
}
