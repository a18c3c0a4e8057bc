package parser

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"robuscrape/models"
)

// ParseListing extracts product URLs and the next-page link from one
// category listing page. Product URLs are absolutized against pageURL,
// trimmed of trailing slashes, and deduplicated in document order.
func ParseListing(html []byte, pageURL string) *models.ListingPage {
	page := &models.ListingPage{}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return page
	}

	seen := make(map[string]struct{})
	add := func(href string) {
		abs := absolutize(href, pageURL)
		if !isProductURL(abs) {
			return
		}
		abs = strings.TrimRight(abs, "/")
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		page.ProductURLs = append(page.ProductURLs, abs)
	}

	// The product grid is the reliable source; a full anchor scan
	// catches grids the theme renders differently.
	doc.Find("ul.products a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		add(href)
	})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		add(href)
	})

	if href, ok := doc.Find("a.next.page-numbers").First().Attr("href"); ok {
		page.NextURL = absolutize(href, pageURL)
	} else if href, ok := doc.Find("li.next a").First().Attr("href"); ok {
		page.NextURL = absolutize(href, pageURL)
	}

	return page
}

// isProductURL reports whether a URL points at a single product page
// rather than a category, tag, or unrelated page.
func isProductURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	path := strings.TrimRight(u.Path, "/")
	if strings.Contains(path, "/product-category/") {
		return false
	}
	rest, ok := strings.CutPrefix(path, "/product/")
	return ok && rest != "" && !strings.Contains(rest, "/")
}

func absolutize(href, base string) string {
	if href == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
