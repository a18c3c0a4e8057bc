// Package parser extracts structured product data from WooCommerce
// product and category listing pages.
package parser

import (
	"bytes"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"robuscrape/models"
)

// rule is one extraction strategy for a field. Rules for a field are
// tried in order; the first one that reports found wins. Keeping them
// as a flat prioritized list (instead of nested conditionals) keeps
// each fallback independently testable.
type rule struct {
	name string
	fn   func(doc *goquery.Document) (string, bool)
}

var nameRules = []rule{
	{"product_title", func(doc *goquery.Document) (string, bool) {
		return textOf(doc.Find("h1.product_title").First())
	}},
	{"page_title", func(doc *goquery.Document) (string, bool) {
		title, ok := textOf(doc.Find("title").First())
		if !ok {
			return "", false
		}
		if i := strings.Index(title, " - "); i >= 0 {
			title = strings.TrimSpace(title[:i])
		}
		return title, title != ""
	}},
}

var priceRules = []rule{
	// <ins> holds the current/sale price when the original is struck
	// through with <del>; prefer it over the plain amount.
	{"sale_price", func(doc *goquery.Document) (string, bool) {
		return textOf(doc.Find("p.price ins bdi").First())
	}},
	{"price_amount", func(doc *goquery.Document) (string, bool) {
		return textOf(doc.Find("p.price bdi").First())
	}},
	{"price_text", func(doc *goquery.Document) (string, bool) {
		return textOf(doc.Find("p.price").First())
	}},
}

var availabilityRules = []rule{
	{"electro_stock", func(doc *goquery.Document) (string, bool) {
		return textOf(doc.Find("div.availability span.electro-stock-availability p.stock").First())
	}},
	{"stock_paragraph", func(doc *goquery.Document) (string, bool) {
		return textOf(doc.Find("p.stock").First())
	}},
	{"page_text", func(doc *goquery.Document) (string, bool) {
		body := strings.ToLower(doc.Find("body").Text())
		switch {
		case strings.Contains(body, "out of stock"):
			return "Out of Stock", true
		case strings.Contains(body, "in stock"):
			return "In Stock", true
		case strings.Contains(body, "low stock"), strings.Contains(body, "low in stock"):
			return "Low Stock", true
		}
		return "", false
	}},
}

var categoryRules = []rule{
	{"posted_in", func(doc *goquery.Document) (string, bool) {
		return textOf(doc.Find("span.posted_in a").First())
	}},
	{"breadcrumb", func(doc *goquery.Document) (string, bool) {
		crumbs := doc.Find("nav.woocommerce-breadcrumb a")
		if crumbs.Length() < 2 {
			return "", false
		}
		// Skip the leading "Home" crumb.
		return textOf(crumbs.Last())
	}},
}

var imageRules = []rule{
	{"gallery", func(doc *goquery.Document) (string, bool) {
		img := doc.Find("div.woocommerce-product-gallery img").First()
		if src, ok := img.Attr("data-src"); ok && src != "" {
			return src, true
		}
		src, ok := img.Attr("src")
		return src, ok && src != ""
	}},
	{"og_image", func(doc *goquery.Document) (string, bool) {
		src, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content")
		return src, ok && src != ""
	}},
}

// ParseProduct extracts a ProductRecord from one product page. It
// never fails: any field whose structural anchor is missing is left
// empty and a diagnostic note is recorded instead.
func ParseProduct(html []byte, sourceURL string) *models.ProductRecord {
	rec := &models.ProductRecord{
		URL:       strings.TrimRight(sourceURL, "/"),
		ScrapedAt: time.Now(),
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		rec.Notes = append(rec.Notes, "document: "+err.Error())
		return rec
	}

	rec.Name = applyRules(doc, "name", nameRules, rec)
	rec.PriceRaw, rec.PriceValue = ParsePrice(applyRules(doc, "price", priceRules, rec))
	rec.Availability = NormalizeAvailability(applyRules(doc, "availability", availabilityRules, rec))
	rec.Category = applyRules(doc, "category", categoryRules, rec)
	rec.ImageURL = absolutize(applyRules(doc, "image", imageRules, rec), sourceURL)
	rec.Specs = extractSpecs(doc, html)
	if len(rec.Specs) == 0 {
		rec.Notes = append(rec.Notes, "specs: no matching element")
	}

	return rec
}

func applyRules(doc *goquery.Document, field string, rules []rule, rec *models.ProductRecord) string {
	for _, r := range rules {
		if value, ok := r.fn(doc); ok {
			return value
		}
	}
	rec.Notes = append(rec.Notes, field+": no matching element")
	return ""
}

// NormalizeAvailability maps the stock text onto a small set of
// canonical labels, keeping unknown text verbatim.
func NormalizeAvailability(text string) string {
	text = collapseWhitespace(text)
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "out of stock"):
		return "Out of Stock"
	case strings.Contains(lower, "low"), strings.Contains(lower, "order now"):
		return "Low Stock"
	case strings.Contains(lower, "in stock"):
		return "In Stock"
	}
	return text
}

func textOf(sel *goquery.Selection) (string, bool) {
	text := collapseWhitespace(sel.Text())
	return text, text != ""
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
