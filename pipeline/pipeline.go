// Package pipeline coordinates validation, de-duplication, batching,
// and output writing for scraped product records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"robuscrape/config"
	"robuscrape/models"
)

// ErrPipelineClosed is returned when Process is called after shutdown.
var ErrPipelineClosed = errors.New("pipeline: closed")

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.ProductRecord) error
	Close() error
	Validate() error
}

// Pipeline funnels records from scraper workers into a writer. Each
// worker owns its record until it is enqueued here, so the channel is
// the only shared hand-off point.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	recCh     chan *models.ProductRecord
	batchSize int

	wg sync.WaitGroup

	// seen bounds memory on very large walks; the URL key makes
	// duplicate rows (same product in two categories) collapse.
	seen *lru.Cache[string, struct{}]

	metrics counters

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline writing to writer.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		// Only possible with a non-positive size, which Validate
		// rejects; fall back to the default rather than panic.
		seen, _ = lru.New[string, struct{}](config.DefaultConfig().DedupeMaxSize)
	}
	return &Pipeline{
		ctx:       ctx,
		writer:    writer,
		recCh:     make(chan *models.ProductRecord, cfg.PipelineBuffer),
		batchSize: cfg.BatchSize,
		seen:      seen,
		metrics:   newCounters(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// MarkSeen pre-seeds the dedupe cache, used by resume mode so URLs
// already present in the output are dropped if they show up again.
func (p *Pipeline) MarkSeen(urls []string) {
	for _, u := range urls {
		p.seen.Add(normalizeKey(u), struct{}{})
	}
}

// Process enqueues one record for downstream processing.
func (p *Pipeline) Process(rec *models.ProductRecord) error {
	if rec == nil {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	return p.enqueue(rec)
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.recCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("processed", metrics["processed_records"].(int64)),
					slog.Int64("error_rows", metrics["error_rows"].(int64)),
					slog.Int64("duplicates", metrics["duplicate_urls"].(int64)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.ProductRecord, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for rec := range p.recCh {
		prepared := p.prepare(rec)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

// prepare enforces the row invariants: a record without a URL is
// dropped (URL is the primary key), and a URL is written at most once.
// Error-carrying rows pass through untouched.
func (p *Pipeline) prepare(rec *models.ProductRecord) *models.ProductRecord {
	if strings.TrimSpace(rec.URL) == "" {
		p.metrics.incInvalid()
		return nil
	}

	if found, _ := p.seen.ContainsOrAdd(normalizeKey(rec.URL), struct{}{}); found {
		p.metrics.incDuplicate()
		return nil
	}

	if rec.Error != "" {
		p.metrics.incErrorRow()
	}
	p.metrics.incProcessed()
	return rec
}

func (p *Pipeline) enqueue(rec *models.ProductRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.recCh <- rec:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.recCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

func normalizeKey(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

type counters struct {
	mu         sync.Mutex
	processed  int64
	errorRows  int64
	duplicates int64
	invalid    int64
}

func newCounters() counters {
	return counters{}
}

func (c *counters) incProcessed() {
	c.mu.Lock()
	c.processed++
	c.mu.Unlock()
}

func (c *counters) incErrorRow() {
	c.mu.Lock()
	c.errorRows++
	c.mu.Unlock()
}

func (c *counters) incDuplicate() {
	c.mu.Lock()
	c.duplicates++
	c.mu.Unlock()
}

func (c *counters) incInvalid() {
	c.mu.Lock()
	c.invalid++
	c.mu.Unlock()
}

func (c *counters) snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"processed_records": c.processed,
		"error_rows":        c.errorRows,
		"duplicate_urls":    c.duplicates,
		"invalid_records":   c.invalid,
	}
}
