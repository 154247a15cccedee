package scraper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgitmiko/gitanime-backend/internal/scraper"
)

func TestCollyFetcherGet(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := scraper.NewCollyFetcher(scraper.FetcherConfig{
		UserAgent:      "gitanime-test",
		DefaultTimeout: 5 * time.Second,
	})
	body, err := f.Fetch(context.Background(), scraper.Request{
		URL:     srv.URL,
		Headers: http.Header{"Accept-Language": {"en-US"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.Equal(t, "gitanime-test", gotUA)
	assert.Equal(t, "en-US", gotAccept)
}

func TestCollyFetcherPostForm(t *testing.T) {
	var gotAction, gotPost string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotAction = r.FormValue("action")
		gotPost = r.FormValue("post")
		_, _ = w.Write([]byte(`<iframe src="https://example.com/v.mp4"></iframe>`))
	}))
	defer srv.Close()

	f := scraper.NewCollyFetcher(scraper.FetcherConfig{DefaultTimeout: 5 * time.Second})
	body, err := f.Fetch(context.Background(), scraper.Request{
		URL:    srv.URL,
		Method: http.MethodPost,
		Form:   map[string]string{"action": "player_ajax", "post": "12345"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), "v.mp4")
	assert.Equal(t, "player_ajax", gotAction)
	assert.Equal(t, "12345", gotPost)
}

func TestCollyFetcherHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := scraper.NewCollyFetcher(scraper.FetcherConfig{DefaultTimeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), scraper.Request{URL: srv.URL})
	require.Error(t, err)

	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, scraper.FetchHTTPStatus, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.Status)
}

func TestCollyFetcherContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()
	defer close(release)

	f := scraper.NewCollyFetcher(scraper.FetcherConfig{DefaultTimeout: 10 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, scraper.Request{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, scraper.IsFetchTimeout(err))
}

func TestCollyFetcherRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()
	defer close(release)

	f := scraper.NewCollyFetcher(scraper.FetcherConfig{DefaultTimeout: 10 * time.Second})
	_, err := f.Fetch(context.Background(), scraper.Request{
		URL:     srv.URL,
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, scraper.IsFetchTimeout(err))
}

func TestCollyFetcherNetworkError(t *testing.T) {
	f := scraper.NewCollyFetcher(scraper.FetcherConfig{DefaultTimeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), scraper.Request{URL: "http://127.0.0.1:1/nope"})
	require.Error(t, err)

	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, scraper.FetchNetwork, fe.Kind)
}
