package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gitgitmiko/gitanime-backend/internal/metrics"
)

// WalkOptions selects the walk mode. EndPage == 0 means unbounded: walk
// until a page yields nothing or no next-page link exists. Bounded walks
// (batch mode) continue past a failed page; unbounded walks abort on the
// first fetch failure.
type WalkOptions struct {
	StartPage int
	EndPage   int
	MaxPages  int // safety cap for unbounded walks
}

// Walker drives repeated fetch+extract cycles over a paged collection with
// a mandatory politeness delay between page fetches.
type Walker struct {
	fetcher  Fetcher
	baseURL  string
	limiter  *rate.Limiter
	maxPages int
	logger   *zap.Logger
}

// NewWalker builds a Walker. The delay between pages is expressed as a rate
// limiter so bursts are impossible regardless of caller behavior.
func NewWalker(fetcher Fetcher, baseURL string, limiter *rate.Limiter, maxPages int, logger *zap.Logger) *Walker {
	if maxPages <= 0 {
		maxPages = 50
	}
	return &Walker{
		fetcher:  fetcher,
		baseURL:  baseURL,
		limiter:  limiter,
		maxPages: maxPages,
		logger:   logger,
	}
}

// PageURL renders the upstream pagination scheme: the bare collection URL
// for page 1, "/page/N/" appended for later pages.
func (w *Walker) PageURL(collectionPath string, page int) string {
	base := w.baseURL + strings.TrimPrefix(collectionPath, "/")
	if page <= 1 {
		return base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return fmt.Sprintf("%spage/%d/", base, page)
}

// Walk accumulates records across pages, deduplicated by key (first
// occurrence wins). The collection label is used for logs and metrics only.
func Walk[T any](
	ctx context.Context,
	w *Walker,
	collection string,
	collectionPath string,
	opts WalkOptions,
	extract func(doc *goquery.Document, page int) []T,
	key func(T) string,
) ([]T, error) {
	if opts.StartPage <= 0 {
		opts.StartPage = 1
	}
	unbounded := opts.EndPage == 0
	lastPage := opts.EndPage
	if unbounded {
		limit := opts.MaxPages
		if limit <= 0 {
			limit = w.maxPages
		}
		lastPage = opts.StartPage + limit - 1
	}

	records := []T{}
	seen := map[string]struct{}{}

	for page := opts.StartPage; page <= lastPage; page++ {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return records, fmt.Errorf("walk canceled: %w", err)
			}
		}

		pageURL := w.PageURL(collectionPath, page)
		body, err := w.fetcher.Fetch(ctx, Request{URL: pageURL})
		if err != nil {
			metrics.ObservePage(collection, "error")
			observeFetchError(err)
			if unbounded {
				return records, fmt.Errorf("walk page %d: %w", page, err)
			}
			w.logger.Warn("page fetch failed, continuing batch",
				zap.String("collection", collection),
				zap.Int("page", page),
				zap.Error(err))
			continue
		}

		doc, err := ParseDocument(body)
		if err != nil {
			// Malformed markup degrades to an empty extraction.
			metrics.ObservePage(collection, "parse_error")
			w.logger.Warn("page parse failed",
				zap.String("collection", collection),
				zap.Int("page", page),
				zap.Error(err))
			continue
		}

		extracted := extract(doc, page)
		if len(extracted) == 0 {
			metrics.ObservePage(collection, "empty")
			w.logger.Info("empty page, stopping walk",
				zap.String("collection", collection),
				zap.Int("page", page))
			break
		}
		metrics.ObservePage(collection, "ok")
		metrics.ObserveRecords(collection, len(extracted))

		added := 0
		for _, rec := range extracted {
			k := key(rec)
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			records = append(records, rec)
			added++
		}
		w.logger.Info("walked page",
			zap.String("collection", collection),
			zap.Int("page", page),
			zap.Int("extracted", len(extracted)),
			zap.Int("added", added),
			zap.Int("total", len(records)))

		if unbounded && !hasNextPage(doc) {
			w.logger.Info("no next page link, stopping walk",
				zap.String("collection", collection),
				zap.Int("page", page))
			break
		}
	}

	return records, nil
}

// hasNextPage checks the pagination block for a next-page control.
func hasNextPage(doc *goquery.Document) bool {
	if doc.Find(`.pagination .next, .pagination a[rel="next"]`).Length() > 0 {
		return true
	}
	next := false
	doc.Find(".pagination a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(sel.Text()), "next") {
			next = true
			return false
		}
		return true
	})
	return next
}

func observeFetchError(err error) {
	var fe *FetchError
	if errors.As(err, &fe) {
		metrics.ObserveFetchError(string(fe.Kind))
		return
	}
	metrics.ObserveFetchError(string(FetchNetwork))
}
