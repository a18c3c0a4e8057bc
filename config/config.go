package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	// AllowedDomain restricts requests to one host (plus its www
	// variant). Empty means no restriction; the CLI derives it from
	// the first URL it is given.
	AllowedDomain string

	UserAgent        string
	Timeout          time.Duration
	Workers          int
	Delay            time.Duration
	RandomDelay      time.Duration
	Sequential       bool
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	MaxPages         int
	RespectRobotsTxt bool

	OutputFile   string
	OutputFormat string // csv, json, or dual
	Resume       bool

	PipelineBuffer int
	BatchSize      int
	DedupeMaxSize  int

	MetricsAddr string
	Verbose     bool

	// ExcludedURLs are product URLs never yielded by a listing walk
	// (service pages that live under /product/ but are not products).
	ExcludedURLs []string
}

// DefaultConfig returns conservative defaults for the target site.
func DefaultConfig() *Config {
	return &Config{
		AllowedDomain:    "robu.in",
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Timeout:          30 * time.Second,
		Workers:          5,
		Delay:            500 * time.Millisecond,
		RandomDelay:      0,
		Sequential:       false,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		MaxPages:         200,
		RespectRobotsTxt: false,
		OutputFile:       "output/products.csv",
		OutputFormat:     "csv",
		Resume:           false,
		PipelineBuffer:   512,
		BatchSize:        64,
		DedupeMaxSize:    100000,
		MetricsAddr:      "",
		Verbose:          false,
		ExcludedURLs: []string{
			"https://robu.in/product/metal-laser-cutting",
			"https://robu.in/product/3d-printing-service",
			"https://robu.in/product/online-laser-cutting-service",
			"https://robu.in/product/sla-3d-printing",
			"https://robu.in/product/online-pcb-manufacturing-service",
		},
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.PipelineBuffer <= 0 {
		return fmt.Errorf("pipeline buffer must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	return nil
}

// EnvInt reads an integer environment variable. The second return
// value reports whether the variable was set.
func EnvInt(name string) (int, bool, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, err)
	}
	return value, true, nil
}

// EnvString reads a string environment variable.
func EnvString(name string) (string, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}
