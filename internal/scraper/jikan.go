package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// JikanResolver is the network-backed variant of the image resolver: it
// searches the Jikan (MyAnimeList) API for artwork and falls back to the
// static resolver when the API is unavailable or has no match. The contract
// matches ImageResolver: total, always a URL.
type JikanResolver struct {
	baseURL  string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	fallback *ImageResolver
	logger   *zap.Logger
}

type jikanSearchResponse struct {
	Data []struct {
		Title  string `json:"title"`
		Images struct {
			JPG struct {
				ImageURL string `json:"image_url"`
			} `json:"jpg"`
		} `json:"images"`
	} `json:"data"`
}

// NewJikanResolver builds a resolver against the Jikan v4 API.
func NewJikanResolver(fallback *ImageResolver, logger *zap.Logger) *JikanResolver {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "jikan",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &JikanResolver{
		baseURL:  "https://api.jikan.moe/v4",
		client:   &http.Client{Timeout: 15 * time.Second},
		cb:       cb,
		fallback: fallback,
		logger:   logger,
	}
}

// Resolve searches the API for the cleaned title and returns the first
// result's artwork, or the static resolution on any failure.
func (r *JikanResolver) Resolve(ctx context.Context, title string) string {
	clean := CleanAnimeTitle(title)
	result, err := r.cb.Execute(func() (any, error) {
		return r.search(ctx, clean)
	})
	if err != nil {
		r.logger.Debug("jikan lookup failed, using static resolver",
			zap.String("title", title), zap.Error(err))
		return r.fallback.Resolve(title)
	}
	imageURL, _ := result.(string)
	if imageURL == "" {
		return r.fallback.Resolve(title)
	}
	return imageURL
}

func (r *JikanResolver) search(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("%s/anime?q=%s&limit=1", r.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build jikan request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("jikan request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("jikan status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read jikan response: %w", err)
	}
	var parsed jikanSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode jikan response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return "", nil
	}
	return parsed.Data[0].Images.JPG.ImageURL, nil
}
