package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/koelab/koe-sentinel/internal/config"
	"github.com/koelab/koe-sentinel/internal/logger"
	"github.com/koelab/koe-sentinel/internal/stats"
)

// statsexport dumps the usage-stats table to a Parquet file for offline
// analysis. Rows carry category counts and verdicts only, so the export is
// as anonymous as the table itself.
func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		outputFile = flag.String("output", "", "Output Parquet file")
		days       = flag.Int("days", 30, "Export events from the last N days (0 = all)")
		summary    = flag.Bool("summary", false, "Print per-category summary and exit")
	)
	flag.Parse()

	if *outputFile == "" && !*summary {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --output stats.parquet --days 90\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --summary\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling export")
		cancel()
	}()

	store, err := stats.NewStore(&stats.Config{
		DatabaseURL:     cfg.Stats.DatabaseURL,
		MaxOpenConns:    cfg.Stats.MaxOpenConns,
		MaxIdleConns:    cfg.Stats.MaxIdleConns,
		ConnMaxLifetime: cfg.Stats.ConnMaxLifetime,
	}, log.Logger)
	if err != nil {
		log.Fatal("Failed to open stats store", zap.Error(err))
	}
	defer store.Close()

	if *summary {
		if err := printSummary(ctx, store); err != nil {
			log.Fatal("Failed to read summary", zap.Error(err))
		}
		return
	}

	if err := exportParquet(ctx, store, *outputFile, *days, log); err != nil {
		log.Fatal("Export failed", zap.Error(err))
	}
}

func printSummary(ctx context.Context, store *stats.Store) error {
	summaries, err := store.Summary(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-12s %10s %12s\n", "CATEGORY", "EVENTS", "TOTAL")
	for _, s := range summaries {
		fmt.Printf("%-12s %10d %12d\n", s.Category, s.Events, s.TotalCounts)
	}
	return nil
}

func exportParquet(ctx context.Context, store *stats.Store, path string, days int, log *logger.Logger) error {
	since := time.Time{}
	if days > 0 {
		since = time.Now().AddDate(0, 0, -days)
	}

	events, err := store.Events(ctx, since)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewWriter(file)
	for i := range events {
		if err := writer.Write(&events[i]); err != nil {
			return fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize parquet file: %w", err)
	}

	log.Info("Export completed",
		zap.String("output", path),
		zap.Int("rows", len(events)))
	return nil
}
