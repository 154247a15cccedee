package scraper_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gitgitmiko/gitanime-backend/internal/scraper"
)

// fakeFetcher serves canned bodies by URL and records every request.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	called []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req scraper.Request) ([]byte, error) {
	f.mu.Lock()
	f.called = append(f.called, req.URL)
	f.mu.Unlock()
	if err, ok := f.errs[req.URL]; ok {
		return nil, err
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return nil, &scraper.FetchError{Kind: scraper.FetchHTTPStatus, URL: req.URL, Status: 404}
	}
	return []byte(body), nil
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.called...)
}

func listingPage(titles []string, withNext bool) string {
	html := "<html><body><ul>"
	for _, title := range titles {
		html += fmt.Sprintf(`<li><h2>%s</h2><a href="/%s/">link</a></li>`, title, scraper.Slug(title))
	}
	html += "</ul>"
	if withNext {
		html += `<div class="pagination"><a class="next" href="#">Next</a></div>`
	}
	return html + "</body></html>"
}

func titlesOf(doc *goquery.Document) []string {
	var titles []string
	doc.Find("li h2").Each(func(_ int, sel *goquery.Selection) {
		titles = append(titles, sel.Text())
	})
	return titles
}

func newTestWalker(f scraper.Fetcher) *scraper.Walker {
	return scraper.NewWalker(f, baseURL, nil, 50, zap.NewNop())
}

func TestWalkerPageURL(t *testing.T) {
	w := newTestWalker(&fakeFetcher{})
	assert.Equal(t, baseURL+"daftar-anime-2/", w.PageURL("daftar-anime-2/", 1))
	assert.Equal(t, baseURL+"daftar-anime-2/page/2/", w.PageURL("daftar-anime-2/", 2))
	assert.Equal(t, baseURL+"anime-terbaru/page/7/", w.PageURL("/anime-terbaru/", 7))
}

func TestWalkBoundedRange(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		baseURL + "list/":        listingPage([]string{"Alpha", "Beta"}, true),
		baseURL + "list/page/2/": listingPage([]string{"Gamma", "Beta"}, true),
	}}
	w := newTestWalker(f)

	got, err := scraper.Walk(context.Background(), w, "test", "list/",
		scraper.WalkOptions{StartPage: 1, EndPage: 2},
		func(doc *goquery.Document, _ int) []string { return titlesOf(doc) },
		func(s string) string { return s },
	)
	require.NoError(t, err)
	// Dedup by key, first occurrence wins.
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, got)
}

func TestWalkBatchContinuesPastFailedPage(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{
			baseURL + "list/":        listingPage([]string{"Alpha"}, true),
			baseURL + "list/page/3/": listingPage([]string{"Gamma"}, true),
		},
		errs: map[string]error{
			baseURL + "list/page/2/": &scraper.FetchError{Kind: scraper.FetchTimeout, URL: baseURL + "list/page/2/"},
		},
	}
	w := newTestWalker(f)

	got, err := scraper.Walk(context.Background(), w, "test", "list/",
		scraper.WalkOptions{StartPage: 1, EndPage: 3},
		func(doc *goquery.Document, _ int) []string { return titlesOf(doc) },
		func(s string) string { return s },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Gamma"}, got)
	assert.Len(t, f.calls(), 3)
}

func TestWalkUnboundedAbortsOnFetchError(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{
			baseURL + "list/": listingPage([]string{"Alpha"}, true),
		},
		errs: map[string]error{
			baseURL + "list/page/2/": &scraper.FetchError{Kind: scraper.FetchNetwork, URL: baseURL + "list/page/2/"},
		},
	}
	w := newTestWalker(f)

	got, err := scraper.Walk(context.Background(), w, "test", "list/",
		scraper.WalkOptions{StartPage: 1, EndPage: 0},
		func(doc *goquery.Document, _ int) []string { return titlesOf(doc) },
		func(s string) string { return s },
	)
	require.Error(t, err)
	// Records gathered before the failure are still returned.
	assert.Equal(t, []string{"Alpha"}, got)
}

func TestWalkStopsOnEmptyPage(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		baseURL + "list/":        listingPage([]string{"Alpha"}, true),
		baseURL + "list/page/2/": "<html><body><ul></ul></body></html>",
		baseURL + "list/page/3/": listingPage([]string{"Gamma"}, true),
	}}
	w := newTestWalker(f)

	got, err := scraper.Walk(context.Background(), w, "test", "list/",
		scraper.WalkOptions{StartPage: 1, EndPage: 5},
		func(doc *goquery.Document, _ int) []string { return titlesOf(doc) },
		func(s string) string { return s },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, got)
	assert.Len(t, f.calls(), 2)
}

func TestWalkUnboundedStopsWithoutNextLink(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		baseURL + "list/":        listingPage([]string{"Alpha"}, true),
		baseURL + "list/page/2/": listingPage([]string{"Beta"}, false),
		baseURL + "list/page/3/": listingPage([]string{"Gamma"}, true),
	}}
	w := newTestWalker(f)

	got, err := scraper.Walk(context.Background(), w, "test", "list/",
		scraper.WalkOptions{StartPage: 1, EndPage: 0},
		func(doc *goquery.Document, _ int) []string { return titlesOf(doc) },
		func(s string) string { return s },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta"}, got)
	assert.Len(t, f.calls(), 2)
}

func TestWalkUnboundedHonorsMaxPages(t *testing.T) {
	pages := map[string]string{baseURL + "list/": listingPage([]string{"Title 1"}, true)}
	for i := 2; i <= 10; i++ {
		pages[fmt.Sprintf("%slist/page/%d/", baseURL, i)] =
			listingPage([]string{fmt.Sprintf("Title %d", i)}, true)
	}
	f := &fakeFetcher{pages: pages}
	w := scraper.NewWalker(f, baseURL, nil, 3, zap.NewNop())

	got, err := scraper.Walk(context.Background(), w, "test", "list/",
		scraper.WalkOptions{StartPage: 1, EndPage: 0},
		func(doc *goquery.Document, _ int) []string { return titlesOf(doc) },
		func(s string) string { return s },
	)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Len(t, f.calls(), 3)
}

func TestWalkSkipsEmptyKeys(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		baseURL + "list/": listingPage([]string{"Alpha", "Beta"}, false),
	}}
	w := newTestWalker(f)

	got, err := scraper.Walk(context.Background(), w, "test", "list/",
		scraper.WalkOptions{StartPage: 1, EndPage: 1},
		func(doc *goquery.Document, _ int) []string { return titlesOf(doc) },
		func(s string) string {
			if s == "Beta" {
				return ""
			}
			return s
		},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, got)
}
