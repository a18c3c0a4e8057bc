// Command scrape walks one or more category listing pages, scrapes
// every discovered product page, and writes one row per product URL
// (success or failure) to a CSV file.
//
//	scrape [flags] <listing-url>... <output.csv>
//	scrape [flags] -url-file listings.txt <output.csv>
//	scrape -urls-only <listing-url>...
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"robuscrape/config"
	"robuscrape/models"
	"robuscrape/pipeline"
	"robuscrape/scraper"
)

const (
	exitOK    = 0
	exitFetch = 1
	exitUsage = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	defaultCfg := config.DefaultConfig()
	workersDefault := defaultCfg.Workers
	if value, ok, err := config.EnvInt("SCRAPER_WORKERS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_WORKERS: %v\n", err)
		return exitUsage
	} else if ok {
		workersDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	workers := flag.Int("workers", workersDefault, "Number of parallel workers")
	delaySec := flag.Float64("delay", 0.5, "Delay between requests (seconds)")
	randomDelayMs := flag.Int("random-delay", 0, "Random jitter added to delay (milliseconds)")
	sequential := flag.Bool("sequential", false, "Scrape one URL at a time, preserving input order")
	urlFile := flag.String("url-file", "", "File containing listing URLs, one per line")
	format := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, or dual")
	maxPages := flag.Int("max-pages", defaultCfg.MaxPages, "Maximum pages to walk per listing")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per URL")
	retryBackoffMs := flag.Int("retry-backoff", 200, "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", 2000, "Maximum retry backoff (milliseconds)")
	timeoutSec := flag.Int("timeout", 30, "Per-request timeout (seconds)")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	resume := flag.Bool("resume", false, "Append to the output CSV and skip URLs already in it")
	urlsOnly := flag.Bool("urls-only", false, "Walk the listings and print discovered product URLs without scraping them")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	listingURLs, outputFile, err := collectArgs(flag.Args(), *urlFile, *urlsOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		flag.Usage()
		return exitUsage
	}

	cfg := defaultCfg
	cfg.Workers = *workers
	cfg.Delay = time.Duration(*delaySec * float64(time.Second))
	cfg.RandomDelay = time.Duration(*randomDelayMs) * time.Millisecond
	cfg.Sequential = *sequential
	cfg.OutputFile = outputFile
	cfg.OutputFormat = strings.ToLower(*format)
	cfg.MaxPages = *maxPages
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.RespectRobotsTxt = *respectRobots
	cfg.Resume = *resume
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if host := hostOf(listingURLs[0]); host != "" {
		cfg.AllowedDomain = strings.TrimPrefix(host, "www.")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitUsage
	}

	s, err := scraper.New(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	// Walk every listing and union the product URLs: a product that
	// appears in two categories is fetched once.
	var productURLs []string
	seen := make(map[string]struct{})
	walksFailed := 0
	for _, listing := range listingURLs {
		slog.Info("walking listing", slog.String("url", listing))
		found, err := s.WalkListing(ctx, listing)
		if err != nil {
			slog.Error("listing walk failed", slog.String("url", listing), slog.Any("error", err))
			walksFailed++
		}
		for _, u := range found {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			productURLs = append(productURLs, u)
		}
		slog.Info("listing walked", slog.String("url", listing), slog.Int("products", len(found)))
	}

	if len(productURLs) == 0 && walksFailed == len(listingURLs) {
		slog.Error("no listing page could be fetched")
		return exitFetch
	}

	if *urlsOnly {
		for _, u := range productURLs {
			fmt.Println(u)
		}
		slog.Info("listing walk complete", slog.Int("products", len(productURLs)))
		return exitOK
	}

	var existingURLs []string
	if cfg.Resume {
		existingURLs, err = pipeline.ReadExistingURLs(cfg.OutputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading existing output: %v\n", err)
			return exitUsage
		}
		productURLs = filterExisting(productURLs, existingURLs)
		slog.Info("resume mode", slog.Int("already_scraped", len(existingURLs)), slog.Int("remaining", len(productURLs)))
	}

	slog.Info("starting product scrape",
		slog.Int("products", len(productURLs)),
		slog.Int("workers", cfg.Workers),
		slog.Bool("sequential", cfg.Sequential),
		slog.Duration("delay", cfg.Delay),
	)

	writer, err := createWriter(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating writer: %v\n", err)
		return exitUsage
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
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
	if len(existingURLs) > 0 {
		p.MarkSeen(existingURLs)
	}
	p.Start(2)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, err := s.ScrapeProducts(ctx, productURLs, p)
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		return exitFetch
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		return exitFetch
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return exitFetch
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, time.Since(startTime), cfg.OutputFile, p.GetMetrics())

	// Individual failed URLs are rows in the CSV, not a process
	// failure; they can be re-run with -resume.
	return exitOK
}

// collectArgs resolves positional arguments and the optional URL file
// into (listing URLs, output path). With urlsOnly set there is no
// output path and every positional argument is a listing URL.
func collectArgs(args []string, urlFile string, urlsOnly bool) ([]string, string, error) {
	if urlFile != "" {
		urls, err := readURLFile(urlFile)
		if err != nil {
			return nil, "", err
		}
		if len(urls) == 0 {
			return nil, "", fmt.Errorf("url file %s contains no URLs", urlFile)
		}
		if urlsOnly {
			if len(args) != 0 {
				return nil, "", fmt.Errorf("-urls-only takes no output path")
			}
			return urls, "", nil
		}
		if len(args) != 1 {
			return nil, "", fmt.Errorf("with -url-file, exactly one positional argument (output CSV path) is required")
		}
		return urls, args[0], nil
	}

	if urlsOnly {
		if len(args) < 1 {
			return nil, "", fmt.Errorf("at least one listing URL is required")
		}
		return args, "", nil
	}

	if len(args) < 2 {
		return nil, "", fmt.Errorf("at least one listing URL and an output CSV path are required")
	}
	return args[:len(args)-1], args[len(args)-1], nil
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return urls, nil
}

func filterExisting(urls, existing []string) []string {
	skip := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		skip[strings.TrimRight(u, "/")] = struct{}{}
	}
	var out []string
	for _, u := range urls {
		if _, ok := skip[strings.TrimRight(u, "/")]; ok {
			continue
		}
		out = append(out, u)
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func createWriter(cfg *config.Config) (pipeline.OutputWriter, error) {
	switch cfg.OutputFormat {
	case "json":
		return pipeline.NewJSONWriter(cfg.OutputFile)
	case "csv":
		return pipeline.NewCSVWriter(cfg.OutputFile, cfg.Resume)
	case "dual":
		jsonFilename := strings.TrimSuffix(cfg.OutputFile, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(cfg.OutputFile, jsonFilename, cfg.Resume)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func printSummary(result *models.ScrapeResult, duration time.Duration, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	processed := int64(0)
	if value, ok := metrics["processed_records"].(int64); ok {
		processed = value
	}
	errorRows := int64(0)
	if value, ok := metrics["error_rows"].(int64); ok {
		errorRows = value
	}

	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(processed) / duration.Seconds()
	}

	fmt.Printf("  Rows written:  %d\n", processed)
	fmt.Printf("  Error rows:    %d\n", errorRows)
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
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
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
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
