// Command product scrapes a single product page and prints the
// extracted fields, either formatted for reading or as JSON. It is the
// debugging companion to the scrape command.
//
//	product [flags] <product-url>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"robuscrape/config"
	"robuscrape/models"
	"robuscrape/scraper"
)

func main() {
	os.Exit(run())
}

func run() int {
	asJSON := flag.Bool("json", false, "Output as JSON instead of formatted text")
	verbose := flag.Bool("v", false, "Show verbose output, including extraction diagnostics")
	timeoutSec := flag.Int("timeout", 30, "Per-request timeout (seconds)")
	maxRetries := flag.Int("max-retries", 2, "Maximum retry attempts")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: exactly one product URL is required")
		flag.Usage()
		return 2
	}
	productURL := flag.Arg(0)

	parsed, err := url.Parse(productURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		fmt.Fprintf(os.Stderr, "error: %q is not a valid product URL\n", productURL)
		return 2
	}

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.Sequential = true
	cfg.Workers = 1
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.MaxRetries = *maxRetries
	cfg.AllowedDomain = strings.TrimPrefix(parsed.Hostname(), "www.")
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 2
	}

	s, err := scraper.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialising scraper: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := s.ScrapeProduct(ctx, productURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scrape failed: %v\n", err)
		return 1
	}

	if *asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(rec); err != nil {
			fmt.Fprintf(os.Stderr, "encode record: %v\n", err)
			return 1
		}
	} else {
		printRecord(rec, *verbose)
	}

	// A single URL that could not be fetched at all is a process
	// failure, unlike partial failures in a batch.
	if rec.Error != "" {
		return 1
	}
	return 0
}

func printRecord(rec *models.ProductRecord, verbose bool) {
	separator := strings.Repeat("=", 60)
	fmt.Println(separator)
	name := rec.Name
	if name == "" {
		name = "Unknown"
	}
	fmt.Printf("Product: %s\n", name)
	fmt.Println(separator)

	printField("URL", rec.URL)
	printField("Price", rec.PriceRaw)
	if rec.PriceValue != nil {
		fmt.Printf("%-14s %g\n", "Price (value):", *rec.PriceValue)
	}
	printField("Availability", rec.Availability)
	printField("Category", rec.Category)
	printField("Image", rec.ImageURL)
	printField("Error", rec.Error)

	if len(rec.Specs) > 0 {
		fmt.Println("Specifications:")
		keys := make([]string, 0, len(rec.Specs))
		for k := range rec.Specs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, rec.Specs[k])
		}
	}

	if verbose && len(rec.Notes) > 0 {
		fmt.Println("Diagnostics:")
		for _, note := range rec.Notes {
			fmt.Printf("  %s\n", note)
		}
	}

	fmt.Println(separator)
}

func printField(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-14s %s\n", label+":", value)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}

	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), level
}
