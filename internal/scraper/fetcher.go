package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Request captures everything needed to fetch one document.
type Request struct {
	URL     string
	Method  string            // "" or GET / POST
	Form    map[string]string // form body for POST
	Headers http.Header       // merged on top of the defaults
	Timeout time.Duration     // mandatory; 0 falls back to the fetcher default
}

// Fetcher retrieves raw markup for a URL. No retries happen at this layer;
// retry is a caller policy.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// FetcherConfig controls collector behavior.
type FetcherConfig struct {
	UserAgent      string
	DefaultTimeout time.Duration
}

// CollyFetcher implements Fetcher using the Colly collector.
type CollyFetcher struct {
	cfg           FetcherConfig
	baseCollector *colly.Collector
}

// NewCollyFetcher builds a CollyFetcher.
func NewCollyFetcher(cfg FetcherConfig) *CollyFetcher {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	return &CollyFetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP request using Colly and returns the body.
func (f *CollyFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = f.cfg.DefaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		if req.Method == http.MethodPost {
			done <- collector.Post(req.URL, req.Form)
			return
		}
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return nil, &FetchError{Kind: FetchTimeout, URL: req.URL, Err: ctx.Err()}
	case err := <-done:
		if err == nil {
			err = fetchErr
		}
		if err != nil {
			return nil, classifyFetchError(req.URL, status, err)
		}
	}

	if status < 200 || status >= 300 {
		return nil, &FetchError{Kind: FetchHTTPStatus, URL: req.URL, Status: status}
	}
	return body, nil
}

func classifyFetchError(url string, status int, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: FetchTimeout, URL: url, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: FetchTimeout, URL: url, Err: err}
	}
	if status != 0 && (status < 200 || status >= 300) {
		return &FetchError{Kind: FetchHTTPStatus, URL: url, Status: status, Err: err}
	}
	return &FetchError{Kind: FetchNetwork, URL: url, Err: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
