package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aluiziolira/go-scrape-grocery/config"
	"github.com/aluiziolira/go-scrape-grocery/models"
	"github.com/aluiziolira/go-scrape-grocery/pipeline"
	"github.com/aluiziolira/go-scrape-grocery/scraper"
)

type options struct {
	configFile        string
	branch            string
	baseURL           string
	maxPages          int
	parallelism       int
	delayMs           int
	randomDelayMs     int
	maxRetries        int
	retryBackoffMs    int
	retryBackoffMaxMs int
	respectRobots     bool
	outputFile        string
	outputFormat      string
	verbose           bool
	metricsAddr       string
	logFile           string
}

func main() {
	defaultCfg := config.DefaultConfig()

	var opts options
	flag.StringVar(&opts.configFile, "config", "", "Optional JSON5 config file layered over the defaults")
	flag.StringVar(&opts.branch, "branch", defaultCfg.Branch, "Store branch id sent as the preferred-store cookie")
	flag.StringVar(&opts.baseURL, "base-url", defaultCfg.BaseURL, "Site base URL")
	flag.IntVar(&opts.maxPages, "max-pages", defaultCfg.MaxPages, "Maximum listing pages to follow (0 = all)")
	flag.IntVar(&opts.parallelism, "parallel", defaultCfg.Parallelism, "Number of concurrent requests")
	flag.IntVar(&opts.delayMs, "delay", 0, "Delay between requests (milliseconds)")
	flag.IntVar(&opts.randomDelayMs, "random-delay", 0, "Random jitter added to delay (milliseconds)")
	flag.IntVar(&opts.maxRetries, "max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per page URL")
	flag.IntVar(&opts.retryBackoffMs, "retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	flag.IntVar(&opts.retryBackoffMaxMs, "retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	flag.BoolVar(&opts.respectRobots, "respect-robots", false, "Respect robots.txt directives")
	flag.StringVar(&opts.outputFile, "output", defaultCfg.OutputFile, "Output file path")
	flag.StringVar(&opts.outputFormat, "format", defaultCfg.OutputFormat, "Output format: csv, json, dual, or sqlite")
	flag.BoolVar(&opts.verbose, "v", false, "Enable verbose logging")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flag.StringVar(&opts.logFile, "log-file", "", "Also write logs to this file, rotated by size")

	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := buildConfig(opts, set)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	logger, level, closeLog := newLogger(cfg.Verbose, cfg.LogFile)
	defer closeLog()
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.String("category_url", cfg.CategoryURL()),
		slog.String("branch", cfg.Branch),
		slog.Int("max_pages", cfg.MaxPages),
		slog.Int("workers", cfg.Parallelism),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
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

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, err := s.Run(ctx, p)
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := validateOutput(writer); err != nil {
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

	metrics := p.GetMetrics()
	duration := time.Since(startTime)
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(processedCount(metrics)) / duration.Seconds()
	}

	printSummary(result, duration, itemsPerSec, cfg.OutputFile, metrics)
}

// buildConfig layers defaults, the optional config file, the environment and
// finally explicitly set flags.
func buildConfig(opts options, set map[string]bool) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configFile != "" {
		if err := config.LoadFile(cfg, opts.configFile); err != nil {
			return nil, err
		}
	}

	if value, ok := config.EnvString("SCRAPER_BRANCH"); ok {
		cfg.Branch = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_PARALLEL"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_PARALLEL: %w", err)
	} else if ok {
		cfg.Parallelism = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}

	for name := range set {
		switch name {
		case "branch":
			cfg.Branch = opts.branch
		case "base-url":
			cfg.BaseURL = opts.baseURL
		case "max-pages":
			cfg.MaxPages = opts.maxPages
		case "parallel":
			cfg.Parallelism = opts.parallelism
		case "delay":
			cfg.Delay = time.Duration(opts.delayMs) * time.Millisecond
		case "random-delay":
			cfg.RandomDelay = time.Duration(opts.randomDelayMs) * time.Millisecond
		case "max-retries":
			cfg.MaxRetries = opts.maxRetries
		case "retry-backoff":
			cfg.RetryBackoff = time.Duration(opts.retryBackoffMs) * time.Millisecond
		case "retry-backoff-max":
			cfg.RetryBackoffMax = time.Duration(opts.retryBackoffMaxMs) * time.Millisecond
		case "respect-robots":
			cfg.RespectRobotsTxt = opts.respectRobots
		case "output":
			cfg.OutputFile = opts.outputFile
		case "format":
			cfg.OutputFormat = opts.outputFormat
		case "v":
			cfg.Verbose = opts.verbose
		case "metrics-addr":
			cfg.MetricsAddr = opts.metricsAddr
		case "log-file":
			cfg.LogFile = opts.logFile
		}
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	if cfg.OutputFile == config.DefaultConfig().OutputFile {
		cfg.OutputFile = defaultOutputFile(cfg.OutputFile, cfg.OutputFormat)
	}
	return cfg, nil
}

// defaultOutputFile swaps the extension of the default output path to match format.
func defaultOutputFile(filename, format string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	switch format {
	case "json":
		return base + ".jsonl"
	case "sqlite":
		return base + ".db"
	default:
		return filename
	}
}

// validateOutput fails on writer errors only. A run that emitted nothing is
// logged and still succeeds.
func validateOutput(writer pipeline.OutputWriter) error {
	err := writer.Validate()
	if errors.Is(err, pipeline.ErrEmptyOutput) {
		slog.Warn("no products were written", slog.Any("reason", err))
		return nil
	}
	return err
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonFilename)
	case "sqlite":
		return pipeline.NewSQLiteWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func processedCount(metrics map[string]interface{}) int64 {
	if processed, ok := metrics["processed_products"].(int64); ok {
		return processed
	}
	return 0
}

func printSummary(result *models.ScraperResult, duration time.Duration, itemsPerSec float64, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	fmt.Printf("  Products:      %d\n", processedCount(metrics))
	fmt.Printf("  Listing pages: %d\n", result.PageCount)
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Dropped:       %d\n", result.DroppedCount)
	if len(result.DropsByType) > 0 {
		fmt.Printf("  Drop reasons:  %v\n", result.DropsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

// newLogger returns the process logger. When logFile is set, records are also
// written there through a size-rotated lumberjack logger.
func newLogger(verbose bool, logFile string) (*slog.Logger, *slog.LevelVar, func()) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var out io.Writer = os.Stdout
	closeFn := func() {}
	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closeFn = func() { _ = rotating.Close() }
	}

	var handler slog.Handler
	if logFile == "" && isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level, closeFn
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
