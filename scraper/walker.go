package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocolly/colly/v2"

	"robuscrape/parser"
)

// WalkListing paginates through a category starting at categoryURL and
// returns the product URLs it discovered, deduplicated, in discovery
// order. The walk performs exactly one fetch per page and stops when
// the next-page affordance is missing, when a page contributes no new
// product URLs (cycle break against broken pagination), after
// MaxPages pages, or when ctx is cancelled.
//
// An unreachable first page is an error; a failure deeper into the
// chain ends the walk and returns what was found so far.
func (s *Scraper) WalkListing(ctx context.Context, categoryURL string) ([]string, error) {
	c, err := s.newCollector(false)
	if err != nil {
		return nil, err
	}

	var (
		pageHTML []byte
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		s.Metrics.IncRequest("listing")
		r.Ctx.Put("start", time.Now())
	})
	c.OnResponse(func(r *colly.Response) {
		pageHTML = r.Body
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

	seen := make(map[string]struct{})
	var found []string

	pageURL := categoryURL
	for page := 1; pageURL != "" && page <= s.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}

		pageHTML, fetchErr = nil, nil
		visitErr := c.Visit(pageURL)
		if fetchErr == nil && visitErr != nil {
			fetchErr = classifyError(visitErr, 0)
		}
		if fetchErr != nil {
			s.Metrics.IncError(errorTypeLabel(fetchErr))
			if page == 1 {
				return nil, fmt.Errorf("fetch listing %s: %w", pageURL, fetchErr)
			}
			slog.Warn("listing page failed, stopping walk",
				slog.String("url", pageURL),
				slog.Int("page", page),
				slog.Any("error", fetchErr),
			)
			break
		}

		listing := parser.ParseListing(pageHTML, pageURL)
		added := 0
		for _, u := range listing.ProductURLs {
			if s.isExcluded(u) {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			found = append(found, u)
			added++
		}

		slog.Debug("listing page walked",
			slog.String("url", pageURL),
			slog.Int("page", page),
			slog.Int("new_products", added),
			slog.Bool("has_next", listing.NextURL != ""),
		)

		if added == 0 || listing.NextURL == "" {
			break
		}
		pageURL = listing.NextURL

		if err := sleepCtx(ctx, s.cfg.Delay); err != nil {
			return found, err
		}
	}

	return found, nil
}
