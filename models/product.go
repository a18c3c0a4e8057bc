// Package models defines data structures for the scraper.
package models

import "time"

// ProductRecord is the flat output row for one product URL. URL is
// always present and acts as the primary key; every other field is
// independently optional. Error is populated when the fetch failed;
// the row is still emitted so failed URLs can be re-run later.
type ProductRecord struct {
	URL          string            `csv:"url" json:"url"`
	Name         string            `csv:"name" json:"name,omitempty"`
	PriceRaw     string            `csv:"price" json:"price,omitempty"`
	PriceValue   *float64          `csv:"price_value" json:"price_value,omitempty"`
	Category     string            `csv:"category" json:"category,omitempty"`
	Specs        map[string]string `csv:"specs" json:"specs,omitempty"`
	ImageURL     string            `csv:"image_url" json:"image_url,omitempty"`
	Availability string            `csv:"availability" json:"availability,omitempty"`
	Notes        []string          `csv:"-" json:"notes,omitempty"`
	Error        string            `csv:"error" json:"error,omitempty"`
	ScrapedAt    time.Time         `csv:"scraped_at" json:"scraped_at"`
}

// ListingPage holds what one fetch of one paginated category page
// yielded. It is transient and never persisted.
type ListingPage struct {
	ProductURLs []string // deduplicated, document order
	NextURL     string   // empty when there is no further page
}

// ScrapeResult holds the overall outcome of one scraping batch.
type ScrapeResult struct {
	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	ErrorCount   int
	RetryCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
}
