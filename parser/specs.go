package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Specification keys longer than this are almost always sentence
// fragments from marketing copy, not attribute labels.
const maxSpecKeyLen = 50

// extractSpecs merges specification sources in priority order: a
// regex sweep of the raw page is the weakest signal, the dedicated
// specification table and WooCommerce attribute rows the strongest.
// Later sources overwrite earlier ones on key collisions.
func extractSpecs(doc *goquery.Document, html []byte) map[string]string {
	specs := make(map[string]string)
	merge(specs, specsFromRegex(html))
	merge(specs, specsFromLists(doc))
	merge(specs, specsFromTable(doc))
	merge(specs, specsFromAttributes(doc))
	return specs
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// specsFromLists reads "key: value" items from the short description
// and summary lists. Related-product sections are avoided by only
// looking inside the product's own description containers.
func specsFromLists(doc *goquery.Document) map[string]string {
	specs := make(map[string]string)

	containers := doc.Find("div.woocommerce-product-details__short-description, div#tab-description, div.summary, div.entry-summary")
	containers.Find("ol li, ul li").Each(func(_ int, item *goquery.Selection) {
		text := collapseWhitespace(item.Text())
		key, value, ok := strings.Cut(text, ":")
		if !ok {
			return
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" || len(key) >= maxSpecKeyLen {
			return
		}
		specs[key] = value
	})

	return specs
}

// specsFromTable reads label/value rows from the specification table.
func specsFromTable(doc *goquery.Document) map[string]string {
	table := findSpecTable(doc)
	if table == nil {
		return nil
	}

	specs := make(map[string]string)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		key := strings.ToLower(collapseWhitespace(cells.Eq(0).Text()))
		key = strings.TrimSpace(strings.TrimSuffix(key, ":"))
		value := collapseWhitespace(cells.Eq(1).Text())
		if key != "" && value != "" {
			specs[key] = value
		}
	})
	return specs
}

func findSpecTable(doc *goquery.Document) *goquery.Selection {
	var table *goquery.Selection

	doc.Find("table[id]").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		id, _ := t.Attr("id")
		if strings.Contains(strings.ToLower(id), "specification") {
			table = t
			return false
		}
		return true
	})
	if table != nil {
		return table
	}

	if t := doc.Find("div#tab-specification table").First(); t.Length() > 0 {
		return t
	}

	// Last resort: any table with enough rows to look like a spec
	// sheet rather than layout markup.
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if t.Find("tr").Length() > 3 {
			table = t
			return false
		}
		return true
	})
	return table
}

// specsFromAttributes reads the WooCommerce additional-information
// rows (shipping weight, shipping dimensions and similar).
func specsFromAttributes(doc *goquery.Document) map[string]string {
	specs := make(map[string]string)
	doc.Find("tr.woocommerce-product-attributes-item").Each(func(_ int, row *goquery.Selection) {
		key := strings.ToLower(collapseWhitespace(row.Find("th.woocommerce-product-attributes-item__label").Text()))
		value := collapseWhitespace(row.Find("td.woocommerce-product-attributes-item__value").Text())
		if key != "" && value != "" {
			specs[key] = value
		}
	})
	return specs
}

// Regex fallbacks for attributes that often appear only in free text.
// Deliberately narrow: broad patterns pick up values from related
// products further down the page.
var specPatterns = map[string][]*regexp.Regexp{
	"weight (kg)": {
		regexp.MustCompile(`weight\s*[:\(]?\s*(\d+\.?\d*)\s*kg`),
	},
	"shipping weight": {
		regexp.MustCompile(`shipping\s*weight\s*[:\s]*(\d+\.?\d*\s*kg)`),
	},
	"shipping dimensions": {
		regexp.MustCompile(`shipping\s*dimensions?\s*[:\s]*([\d.]+\s*[×x]\s*[\d.]+\s*[×x]\s*[\d.]+\s*cm)`),
	},
	"rated current (a)": {
		regexp.MustCompile(`rated?\s*current\s*[:\(]?\s*[<>]?\s*(\d+\.?\d*)\s*a\b`),
	},
	"shaft diameter (mm)": {
		regexp.MustCompile(`shaft\s*diameter\s*[:\(]?\s*(\d+\.?\d*)\s*mm`),
	},
	"efficiency (%)": {
		regexp.MustCompile(`efficiency\s*[:\(]?\s*>?\s*(\d+)\s*%`),
	},
}

func specsFromRegex(html []byte) map[string]string {
	text := strings.ToLower(string(html))
	specs := make(map[string]string)
	for key, patterns := range specPatterns {
		for _, pattern := range patterns {
			if m := pattern.FindStringSubmatch(text); m != nil {
				specs[key] = collapseWhitespace(m[1])
				break
			}
		}
	}
	return specs
}
