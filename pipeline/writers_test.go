package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"robuscrape/models"
)

func sampleRecord() *models.ProductRecord {
	price := 1299.00
	return &models.ProductRecord{
		URL:        "http://example.test/product/my6812",
		Name:       "MY6812 100W DC Motor",
		PriceRaw:   "₹1,299.00",
		PriceValue: &price,
		Category:   "DC Motors",
		Specs: map[string]string{
			"rated voltage": "12 V DC",
			"rated power":   "100 W",
		},
		ImageURL:     "http://example.test/media/my6812.jpg",
		Availability: "In Stock",
		ScrapedAt:    time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
	}
}

func TestCSVWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "products.csv")

	writer, err := NewCSVWriter(path, false)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := writer.Write([]*models.ProductRecord{sampleRecord()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}

	header := rows[0]
	for i, want := range csvHeader {
		if header[i] != want {
			t.Errorf("header[%d] = %q, want %q", i, header[i], want)
		}
	}

	row := rows[1]
	if row[0] != "http://example.test/product/my6812" {
		t.Errorf("url = %q", row[0])
	}
	if row[2] != "₹1,299.00" {
		t.Errorf("price = %q", row[2])
	}
	if row[3] != "1299" {
		t.Errorf("price_value = %q, want %q", row[3], "1299")
	}
	// Map keys are sorted by encoding/json, so the column is stable.
	if row[5] != `{"rated power":"100 W","rated voltage":"12 V DC"}` {
		t.Errorf("specs = %q", row[5])
	}
	if row[9] != "2026-08-23T10:00:00Z" {
		t.Errorf("scraped_at = %q", row[9])
	}
}

func TestCSVWriterAppendSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")

	first, err := NewCSVWriter(path, false)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := first.Write([]*models.ProductRecord{sampleRecord()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := NewCSVWriter(path, true)
	if err != nil {
		t.Fatalf("NewCSVWriter append: %v", err)
	}
	other := sampleRecord()
	other.URL = "http://example.test/product/other"
	if err := second.Write([]*models.ProductRecord{other}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2 (no second header)", len(rows))
	}
	if rows[1][0] == "url" || rows[2][0] == "url" {
		t.Error("append mode wrote a duplicate header")
	}
}

func TestReadExistingURLs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")

	writer, err := NewCSVWriter(path, false)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	a := sampleRecord()
	b := sampleRecord()
	b.URL = "http://example.test/product/other"
	if err := writer.Write([]*models.ProductRecord{a, b}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	urls, err := ReadExistingURLs(path)
	if err != nil {
		t.Fatalf("ReadExistingURLs: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("urls = %v, want 2", urls)
	}
	if urls[0] != a.URL || urls[1] != b.URL {
		t.Errorf("urls = %v", urls)
	}

	missing, err := ReadExistingURLs(filepath.Join(dir, "nope.csv"))
	if err != nil {
		t.Fatalf("ReadExistingURLs missing: %v", err)
	}
	if missing != nil {
		t.Errorf("missing file urls = %v, want nil", missing)
	}
}

func TestJSONWriterWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("NewJSONWriter: %v", err)
	}
	a := sampleRecord()
	b := sampleRecord()
	b.URL = "http://example.test/product/other"
	b.Error = "not_found: Not Found"
	if err := writer.Write([]*models.ProductRecord{a, b}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var lines []models.ProductRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec models.ProductRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		lines = append(lines, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].URL != a.URL || lines[0].Name != a.Name {
		t.Errorf("line 0 = %+v", lines[0])
	}
	if lines[1].Error != "not_found: Not Found" {
		t.Errorf("line 1 error = %q", lines[1].Error)
	}
}

func TestDualWriterWritesBoth(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	jsonPath := filepath.Join(dir, "products.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath, false)
	if err != nil {
		t.Fatalf("NewDualWriter: %v", err)
	}
	if err := writer.Write([]*models.ProductRecord{sampleRecord()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, path := range []string{csvPath, jsonPath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", path)
		}
	}
}
