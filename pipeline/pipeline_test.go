package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"robuscrape/config"
	"robuscrape/models"
)

type memoryWriter struct {
	mu   sync.Mutex
	recs []*models.ProductRecord
	fail error
}

func (mw *memoryWriter) Write(records []*models.ProductRecord) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.fail != nil {
		return mw.fail
	}
	mw.recs = append(mw.recs, records...)
	return nil
}

func (mw *memoryWriter) Close() error    { return nil }
func (mw *memoryWriter) Validate() error { return nil }

func (mw *memoryWriter) records() []*models.ProductRecord {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	out := make([]*models.ProductRecord, len(mw.recs))
	copy(out, mw.recs)
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.PipelineBuffer = 16
	cfg.BatchSize = 2
	cfg.DedupeMaxSize = 64
	return cfg
}

func rec(url string) *models.ProductRecord {
	return &models.ProductRecord{
		URL:       url,
		Name:      "x",
		ScrapedAt: time.Now(),
	}
}

func TestPipelineDedupesByURL(t *testing.T) {
	writer := &memoryWriter{}
	p := NewPipeline(context.Background(), writer, testConfig())
	p.Start(1)

	inputs := []*models.ProductRecord{
		rec("http://example.test/product/a"),
		rec("http://example.test/product/b"),
		rec("http://example.test/product/a/"), // trailing slash, same product
	}
	for _, r := range inputs {
		if err := p.Process(r); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(writer.records()); got != 2 {
		t.Errorf("written rows = %d, want 2", got)
	}

	metrics := p.GetMetrics()
	if got := metrics["duplicate_urls"].(int64); got != 1 {
		t.Errorf("duplicate_urls = %d, want 1", got)
	}
	if got := metrics["processed_records"].(int64); got != 2 {
		t.Errorf("processed_records = %d, want 2", got)
	}
}

func TestPipelineDropsRecordWithoutURL(t *testing.T) {
	writer := &memoryWriter{}
	p := NewPipeline(context.Background(), writer, testConfig())
	p.Start(1)

	if err := p.Process(&models.ProductRecord{Name: "orphan"}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := p.Process(rec("http://example.test/product/a")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(writer.records()); got != 1 {
		t.Errorf("written rows = %d, want 1", got)
	}
	if got := p.GetMetrics()["invalid_records"].(int64); got != 1 {
		t.Errorf("invalid_records = %d, want 1", got)
	}
}

func TestPipelineErrorRowsPassThrough(t *testing.T) {
	writer := &memoryWriter{}
	p := NewPipeline(context.Background(), writer, testConfig())
	p.Start(1)

	failed := rec("http://example.test/product/broken")
	failed.Error = "http_status 500: Internal Server Error"
	if err := p.Process(failed); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs := writer.records()
	if len(recs) != 1 {
		t.Fatalf("written rows = %d, want 1", len(recs))
	}
	if recs[0].Error == "" {
		t.Error("error row must keep its error text")
	}
	if got := p.GetMetrics()["error_rows"].(int64); got != 1 {
		t.Errorf("error_rows = %d, want 1", got)
	}
}

func TestPipelineMarkSeenSkipsResumedURLs(t *testing.T) {
	writer := &memoryWriter{}
	p := NewPipeline(context.Background(), writer, testConfig())
	p.MarkSeen([]string{"http://example.test/product/done/"})
	p.Start(1)

	if err := p.Process(rec("http://example.test/product/done")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := p.Process(rec("http://example.test/product/new")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs := writer.records()
	if len(recs) != 1 || recs[0].URL != "http://example.test/product/new" {
		t.Errorf("written rows = %v, want only the new product", recs)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(context.Background(), &memoryWriter{}, testConfig())
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := p.Process(rec("http://example.test/product/late")); !errors.Is(err, ErrPipelineClosed) {
		t.Errorf("Process after close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineSurfacesWriterError(t *testing.T) {
	writer := &memoryWriter{fail: errors.New("disk full")}
	p := NewPipeline(context.Background(), writer, testConfig())
	p.Start(1)

	// Enough records to force a flush.
	for i := 0; i < 4; i++ {
		url := rec("http://example.test/product/p" + string(rune('a'+i)))
		if err := p.Process(url); err != nil {
			break // pipeline may already be shutting down
		}
	}

	if err := p.Close(); err == nil {
		t.Fatal("expected writer error to surface from Close")
	}
}
