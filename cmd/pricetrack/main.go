package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/pricetrack/config"
	"github.com/aluiziolira/pricetrack/fetcher"
	"github.com/aluiziolira/pricetrack/models"
	"github.com/aluiziolira/pricetrack/orchestrator"
	"github.com/aluiziolira/pricetrack/patterns"
	"github.com/aluiziolira/pricetrack/pipeline"
)

func main() {
	defaultCfg := config.DefaultConfig()
	patternsDefault := defaultCfg.PatternsFile
	if value, ok := config.EnvString("PRICETRACK_PATTERNS"); ok {
		patternsDefault = value
	}
	itemsDefault := defaultCfg.ItemsFile
	if value, ok := config.EnvString("PRICETRACK_ITEMS"); ok {
		itemsDefault = value
	}
	concurrencyDefault := defaultCfg.MaxConcurrent
	if value, ok, err := config.EnvInt("PRICETRACK_CONCURRENCY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid PRICETRACK_CONCURRENCY: %v\n", err)
		os.Exit(1)
	} else if ok {
		concurrencyDefault = value
	}
	spacingDefault := defaultCfg.DomainSpacing
	if value, ok, err := config.EnvDuration("PRICETRACK_SPACING"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid PRICETRACK_SPACING: %v\n", err)
		os.Exit(1)
	} else if ok {
		spacingDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("PRICETRACK_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("PRICETRACK_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	patternsFile := flag.String("patterns", patternsDefault, "Pattern rule set file (YAML)")
	itemsFile := flag.String("items", itemsDefault, "Due item batch file (JSON)")
	concurrency := flag.Int("concurrency", concurrencyDefault, "Maximum concurrent fetches")
	spacing := flag.Duration("spacing", spacingDefault, "Minimum spacing between requests to one domain")
	randomDelay := flag.Duration("random-delay", 0, "Random jitter added to domain spacing")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "Request timeout")
	maxAttempts := flag.Int("max-attempts", defaultCfg.MaxAttempts, "Maximum fetch attempts per item")
	retryBackoff := flag.Duration("retry-backoff", defaultCfg.RetryBackoff, "Initial retry backoff")
	retryBackoffMax := flag.Duration("retry-backoff-max", defaultCfg.RetryBackoffMax, "Maximum retry backoff")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: jsonl, csv, or dual")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.PatternsFile = *patternsFile
	cfg.ItemsFile = *itemsFile
	cfg.MaxConcurrent = *concurrency
	cfg.DomainSpacing = *spacing
	cfg.RandomDelay = *randomDelay
	cfg.Timeout = *timeout
	cfg.MaxAttempts = *maxAttempts
	cfg.RetryBackoff = *retryBackoff
	cfg.RetryBackoffMax = *retryBackoffMax
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	loaded, err := patterns.LoadFile(cfg.PatternsFile)
	if err != nil {
		slog.Error("loading patterns", slog.Any("error", err))
		os.Exit(1)
	}
	repo := patterns.NewRepository(cfg.HealthThreshold, cfg.HealthMinAttempts)
	for _, p := range loaded {
		if err := repo.Put(p); err != nil {
			slog.Error("registering pattern", slog.String("domain", p.Domain), slog.Any("error", err))
			os.Exit(1)
		}
	}

	items, err := loadItems(cfg.ItemsFile)
	if err != nil {
		slog.Error("loading items", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting cycle",
		slog.Int("items", len(items)),
		slog.Int("patterns", repo.Len()),
		slog.Int("workers", cfg.MaxConcurrent),
	)

	client, err := fetcher.New(cfg)
	if err != nil {
		slog.Error("initialising fetch client", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(2)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	sink := pipeline.NewRecordingSink(repo, p)
	orch := orchestrator.New(cfg, repo, client, sink)

	repo.OnFlag(func(ev patterns.HealthEvent) {
		orch.Metrics.IncFlag()
		slog.Warn("pattern flagged",
			slog.String("domain", ev.Domain),
			slog.String("reason", string(ev.Reason)),
			slog.Float64("success_rate", ev.SuccessRate),
		)
	})

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(orch.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, err := orch.Run(ctx, items)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("cycle failed", slog.Any("error", err))
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, cfg.OutputFile, p.GetMetrics())
}

// loadItems reads the scheduler's batch file, keeping only items due now.
func loadItems(path string) ([]models.FetchItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items file: %w", err)
	}

	var all []models.FetchItem
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("parse items file: %w", err)
	}

	now := time.Now()
	due := make([]models.FetchItem, 0, len(all))
	for _, item := range all {
		if item.ID == "" || item.URL == "" || item.Domain == "" {
			return nil, fmt.Errorf("item missing id, url or domain: %+v", item)
		}
		if item.Due(now) {
			due = append(due, item)
		}
	}
	if skipped := len(all) - len(due); skipped > 0 {
		slog.Info("skipping items not yet due", slog.Int("count", skipped))
	}
	return due, nil
}

func createWriter(format, filename string) (pipeline.OutcomeWriter, error) {
	switch format {
	case "jsonl":
		return pipeline.NewJSONLWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonlFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonlFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.CycleResult, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Cycle complete")

	duration := result.EndTime.Sub(result.StartTime)
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.TotalItems) / duration.Seconds()
	}
	successRate := 0.0
	if result.TotalItems > 0 {
		successRate = float64(result.Succeeded) / float64(result.TotalItems) * 100
	}

	fmt.Printf("  Total items:   %d\n", result.TotalItems)
	fmt.Printf("  Succeeded:     %d\n", result.Succeeded)
	fmt.Printf("  Failed:        %d\n", result.Failed)
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByKind) > 0 {
		fmt.Printf("  Error kinds:   %v\n", result.ErrorsByKind)
	}
	if processed, ok := metrics["processed_outcomes"].(int64); ok {
		fmt.Printf("  Sunk outcomes: %d\n", processed)
	}
	if dropped, ok := metrics["dropped"].(map[string]int); ok && len(dropped) > 0 {
		fmt.Printf("  Dropped:       %v\n", dropped)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
