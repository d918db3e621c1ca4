// Command cyclescan loads a conversion-rate dataset, builds the CSR
// graph, and runs the streaming arbitrage pipeline for a fixed duration
// or until the producer quota is exhausted and any configured live feed
// has stopped. Final counters and the
// latest profitable cycle are printed to standard output.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tokenarb/cyclescan/internal/config"
	"github.com/tokenarb/cyclescan/internal/dataset"
	"github.com/tokenarb/cyclescan/internal/feed"
	"github.com/tokenarb/cyclescan/internal/graph"
	"github.com/tokenarb/cyclescan/internal/notify"
	"github.com/tokenarb/cyclescan/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("cyclescan exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run wires the dataset, graph, and pipeline, drives the run to
// completion, and prints the final statistics.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ds, err := loadDataset(ctx, cfg)
	if err != nil {
		return err
	}

	edges, err := ds.GraphEdges()
	if err != nil {
		return err
	}
	g, err := graph.Build(ds.NumTokens(), edges)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	logger.Info("graph built",
		slog.String("dataset", cfg.Dataset.Path),
		slog.Int("tokens", g.NumTokens()),
		slog.Int("edges", g.NumEdges()),
	)

	opts := []pipeline.Option{}
	if cfg.Feed.URL != "" {
		opts = append(opts, pipeline.WithSource(feed.NewSocket(cfg.Feed.URL, logger)))
	}
	if cfg.Redis.Addr != "" {
		pub, err := notify.NewPublisher(ctx, notify.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			Stream:   cfg.Redis.Stream,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect cycle publisher: %w", err)
		}
		defer pub.Close()
		opts = append(opts, pipeline.WithPublisher(pub))
	}

	if cfg.Duration.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration.Duration)
		defer cancel()
	}

	pipe := pipeline.New(g, ds.BaselineRates(), pipeline.Config{
		HopCap:          cfg.Search.HopCap,
		SearchInterval:  cfg.Search.Interval.Duration,
		CoalesceWindow:  cfg.Pipeline.CoalesceWindow.Duration,
		MaxCoalesce:     cfg.Pipeline.MaxCoalesce,
		MaxUpdates:      cfg.Pipeline.MaxUpdates,
		ChannelCapacity: cfg.Pipeline.ChannelCapacity,
		RateLo:          cfg.Pipeline.RateLo,
		RateHi:          cfg.Pipeline.RateHi,
		RateJitter:      cfg.Pipeline.RateJitter,
		Quantum:         cfg.Kernel.Quantum,
		EpsLog:          cfg.Kernel.EpsLog,
	}, logger, opts...)

	stats, err := pipe.Run(ctx)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	printStats(stats)
	return nil
}

// loadDataset resolves the configured path to a local file or an
// s3://bucket/key object.
func loadDataset(ctx context.Context, cfg *config.Config) (*dataset.Dataset, error) {
	if !dataset.IsS3URI(cfg.Dataset.Path) {
		return dataset.Load(cfg.Dataset.Path)
	}

	bucket, key, err := dataset.SplitS3URI(cfg.Dataset.Path)
	if err != nil {
		return nil, err
	}
	store, err := dataset.NewObjectStore(ctx, dataset.S3Config{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return store.Fetch(ctx, bucket, key)
}

// printStats writes the final counters and, when present, the latest
// profitable cycle to stdout.
func printStats(stats pipeline.Stats) {
	fmt.Printf("run_id:              %s\n", stats.RunID)
	fmt.Printf("searches_run:        %d\n", stats.SearchesRun)
	fmt.Printf("updates_applied:     %d\n", stats.UpdatesApplied)
	fmt.Printf("rejected_index:      %d\n", stats.RejectedIndex)
	fmt.Printf("rejected_nonfinite:  %d\n", stats.RejectedNonFinite)
	fmt.Printf("updates_clamped:     %d\n", stats.UpdatesClamped)

	if stats.LastCycle == nil {
		fmt.Println("profitable_cycle:    none")
		return
	}
	c := stats.LastCycle
	fmt.Printf("profitable_cycle:    start=%d hops=%d profit=%.9f log_cost=%.9f\n", c.Start, c.Hops, c.Profit, c.LogCost)
	fmt.Printf("cycle_edges:         %v\n", c.Edges)
	fmt.Printf("cycle_vertices:      %v\n", c.Vertices)
}
