package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"robuscrape/models"
	"robuscrape/parser"
)

// ScrapeProducts fetches and parses every product URL and hands
// exactly one row per distinct input URL to sink: a parsed record on
// success, an error-carrying record on failure. Per-URL failures never
// abort the batch.
//
// Sequential mode preserves input order and sleeps the configured
// delay between requests. Parallel mode runs the configured number of
// workers through the collector's limit rule and makes no ordering
// guarantee. Transient and unclassified failures are retried with
// exponential backoff up to MaxRetries times; 404/410 are not.
func (s *Scraper) ScrapeProducts(ctx context.Context, urls []string, sink RecordSink) (*models.ScrapeResult, error) {
	urls = dedupeURLs(urls)

	result := &models.ScrapeResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}

	var err error
	if s.cfg.Sequential {
		err = s.scrapeSequential(ctx, urls, sink, result)
	} else {
		err = s.scrapeParallel(ctx, urls, sink, result)
	}

	result.EndTime = time.Now()
	return result, err
}

// ScrapeProduct fetches and parses a single product page, always
// returning a record (error-carrying on fetch failure).
func (s *Scraper) ScrapeProduct(ctx context.Context, url string) (*models.ProductRecord, error) {
	var rec *models.ProductRecord
	sink := sinkFunc(func(r *models.ProductRecord) error {
		rec = r
		return nil
	})

	result := &models.ScrapeResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	if err := s.scrapeSequential(ctx, dedupeURLs([]string{url}), sink, result); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no record produced for %s", url)
	}
	return rec, nil
}

type sinkFunc func(*models.ProductRecord) error

func (f sinkFunc) Process(rec *models.ProductRecord) error { return f(rec) }

// inputURLKey is the request-context key holding the caller-supplied
// URL a parallel request was dispatched for.
const inputURLKey = "input_url"

func (s *Scraper) scrapeSequential(ctx context.Context, urls []string, sink RecordSink, result *models.ScrapeResult) error {
	c, err := s.newCollector(false)
	if err != nil {
		return err
	}
	// Retries re-visit the same URL on the same collector.
	c.AllowURLRevisit = true

	var (
		body     []byte
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		result.RequestCount++
		s.Metrics.IncRequest("product")
		r.Ctx.Put("start", time.Now())
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			s.Metrics.ObserveDuration(time.Since(start))
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = classifyError(err, status)
	})

	for i, u := range urls {
		if ctx.Err() != nil {
			for _, rest := range urls[i:] {
				s.recordFailure(result, rest, ctx.Err())
				s.emit(sink, errorRecord(rest, ctx.Err()))
			}
			return nil
		}
		if i > 0 {
			if err := sleepCtx(ctx, s.cfg.Delay); err != nil {
				for _, rest := range urls[i:] {
					s.recordFailure(result, rest, err)
					s.emit(sink, errorRecord(rest, err))
				}
				return nil
			}
		}

		var rec *models.ProductRecord
		for attempt := 0; ; attempt++ {
			body, fetchErr = nil, nil
			visitErr := c.Visit(u)
			if fetchErr == nil && visitErr != nil {
				fetchErr = classifyError(visitErr, 0)
			}
			if fetchErr == nil {
				rec = parser.ParseProduct(body, u)
				s.Metrics.IncItems()
				break
			}

			result.ErrorCount++
			result.ErrorsByType[errorTypeLabel(fetchErr)]++
			s.Metrics.IncError(errorTypeLabel(fetchErr))

			if attempt >= s.cfg.MaxRetries || errorClass(fetchErr) == ClassPermanent || ctx.Err() != nil {
				rec = errorRecord(u, fetchErr)
				result.FailedURLs = append(result.FailedURLs, u)
				break
			}

			result.RetryCount++
			s.Metrics.IncRetries()
			if err := sleepCtx(ctx, s.backoff(attempt+1)); err != nil {
				rec = errorRecord(u, fetchErr)
				result.FailedURLs = append(result.FailedURLs, u)
				break
			}
		}
		s.emit(sink, rec)
	}

	return nil
}

// scrapeParallel runs retry rounds: a full async pass over the pending
// URLs, then another pass over whatever failed retryably, with
// exponential backoff between rounds. Round-based retry keeps the
// one-row-per-URL mapping trivial to enforce.
func (s *Scraper) scrapeParallel(ctx context.Context, urls []string, sink RecordSink, result *models.ScrapeResult) error {
	pending := urls
	for attempt := 0; len(pending) > 0; attempt++ {
		if ctx.Err() != nil {
			for _, u := range pending {
				s.recordFailure(result, u, ctx.Err())
				s.emit(sink, errorRecord(u, ctx.Err()))
			}
			return nil
		}
		if attempt > 0 {
			result.RetryCount += len(pending)
			for range pending {
				s.Metrics.IncRetries()
			}
			slog.Debug("retrying failed product pages",
				slog.Int("count", len(pending)),
				slog.Int("attempt", attempt),
			)
			if err := sleepCtx(ctx, s.backoff(attempt)); err != nil {
				continue
			}
		}

		retryable, err := s.runPass(ctx, pending, sink, result, attempt)
		if err != nil {
			return err
		}
		pending = retryable
	}
	return nil
}

func (s *Scraper) runPass(ctx context.Context, urls []string, sink RecordSink, result *models.ScrapeResult, attempt int) ([]string, error) {
	c, err := s.newCollector(true)
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		done      = make(map[string]bool, len(urls))
		retryable []string
	)

	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		result.RequestCount++
		mu.Unlock()
		s.Metrics.IncRequest("product")
		r.Ctx.Put("start", time.Now())
	})
	// Rows are keyed by the URL the caller supplied, carried in the
	// request context: a redirect changes the response URL but must not
	// detach the row from its input URL.
	c.OnResponse(func(r *colly.Response) {
		u := r.Ctx.Get(inputURLKey)
		rec := parser.ParseProduct(r.Body, u)
		s.Metrics.IncItems()
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			s.Metrics.ObserveDuration(time.Since(start))
		}
		mu.Lock()
		done[u] = true
		mu.Unlock()
		s.emit(sink, rec)
	})
	c.OnError(func(r *colly.Response, err error) {
		u := r.Ctx.Get(inputURLKey)
		classified := classifyError(err, r.StatusCode)

		mu.Lock()
		done[u] = true
		result.ErrorCount++
		result.ErrorsByType[errorTypeLabel(classified)]++
		s.Metrics.IncError(errorTypeLabel(classified))
		if attempt < s.cfg.MaxRetries && errorClass(classified) != ClassPermanent {
			retryable = append(retryable, u)
			mu.Unlock()
			return
		}
		result.FailedURLs = append(result.FailedURLs, u)
		mu.Unlock()

		slog.Error("product page failed",
			slog.String("url", u),
			slog.String("category", errorTypeLabel(classified)),
			slog.Any("error", classified),
		)
		s.emit(sink, errorRecord(u, classified))
	})

	for _, u := range urls {
		reqCtx := colly.NewContext()
		reqCtx.Put(inputURLKey, u)
		if err := c.Request("GET", u, nil, reqCtx, nil); err != nil {
			// Refused before any request went out (malformed URL,
			// disallowed domain). Never retryable.
			classified := classifyError(err, 0)
			mu.Lock()
			done[u] = true
			mu.Unlock()
			s.recordFailure(result, u, classified)
			s.emit(sink, errorRecord(u, classified))
		}
	}
	c.Wait()

	// Every input URL must have produced a row or a retry entry.
	mu.Lock()
	defer mu.Unlock()
	for _, u := range urls {
		if done[u] {
			continue
		}
		missing := fmt.Errorf("no response received")
		result.ErrorCount++
		result.ErrorsByType["other"]++
		result.FailedURLs = append(result.FailedURLs, u)
		s.emit(sink, errorRecord(u, missing))
	}

	return retryable, nil
}

func (s *Scraper) recordFailure(result *models.ScrapeResult, url string, err error) {
	result.ErrorCount++
	result.ErrorsByType[errorTypeLabel(err)]++
	result.FailedURLs = append(result.FailedURLs, url)
	s.Metrics.IncError(errorTypeLabel(err))
}

func (s *Scraper) emit(sink RecordSink, rec *models.ProductRecord) {
	if err := sink.Process(rec); err != nil {
		slog.Error("pipeline process error",
			slog.String("url", rec.URL),
			slog.Any("error", err),
		)
	}
}
