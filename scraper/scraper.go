// Package scraper drives page fetching: listing walks, the product
// worker pool, error classification, and retry policy. Fetching goes
// through colly collectors configured for the target site; parsing is
// delegated to the parser package.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"robuscrape/config"
	"robuscrape/models"
)

// RecordSink receives finished product rows. *pipeline.Pipeline
// satisfies it.
type RecordSink interface {
	Process(rec *models.ProductRecord) error
}

// Scraper builds configured collectors and runs scraping operations.
type Scraper struct {
	cfg      *config.Config
	Metrics  *Metrics
	excluded map[string]struct{}

	// baseTransport underlies every collector; tests inject a mock
	// transport here.
	baseTransport http.RoundTripper
}

// New builds a scraper instance configured from cfg.
func New(cfg *config.Config) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludedURLs))
	for _, u := range cfg.ExcludedURLs {
		excluded[normalizeURL(u)] = struct{}{}
	}

	return &Scraper{
		cfg:      cfg,
		Metrics:  NewMetrics(),
		excluded: excluded,
	}, nil
}

// SetBaseTransport replaces the RoundTripper beneath the browser
// header layer. Tests use it to inject httpmock transports.
func (s *Scraper) SetBaseTransport(rt http.RoundTripper) {
	s.baseTransport = rt
}

func (s *Scraper) newCollector(async bool) (*colly.Collector, error) {
	opts := []colly.CollectorOption{
		colly.UserAgent(s.cfg.UserAgent),
	}
	if async {
		opts = append(opts, colly.Async(true))
	}
	if s.cfg.AllowedDomain != "" {
		opts = append(opts, colly.AllowedDomains(s.cfg.AllowedDomain, "www."+s.cfg.AllowedDomain))
	}

	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(s.cfg.Timeout)
	c.IgnoreRobotsTxt = !s.cfg.RespectRobotsTxt
	c.WithTransport(newBrowserTransport(s.baseTransport))

	if async {
		if err := c.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: s.cfg.Workers,
			Delay:       s.cfg.Delay,
			RandomDelay: s.cfg.RandomDelay,
		}); err != nil {
			return nil, fmt.Errorf("configure rate limits: %w", err)
		}
	}

	return c, nil
}

// backoff returns the exponential retry delay for the given attempt
// (1-based), capped at the configured maximum.
func (s *Scraper) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := s.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max := s.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (s *Scraper) isExcluded(u string) bool {
	_, ok := s.excluded[normalizeURL(u)]
	return ok
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

// dedupeURLs drops duplicates while preserving first-seen order.
// User-supplied input goes through this too: a URL listed twice is
// fetched once, matching the walker's own dedupe.
func dedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		norm := normalizeURL(u)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errorRecord(url string, err error) *models.ProductRecord {
	return &models.ProductRecord{
		URL:       url,
		Error:     err.Error(),
		ScrapedAt: time.Now(),
	}
}
