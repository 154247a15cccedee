package scraper

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/gitgitmiko/gitanime-backend/internal/metrics"
)

// The upstream player bootstrap varies by whichever hosting backend the site
// uses at scrape time. Discovery is therefore an ordered table of strategy
// functions evaluated until one succeeds; exhausting every strategy is a
// valid "not found" outcome, not an error.

var (
	mediaURLRe    = regexp.MustCompile(`(?i)https?://[^"'\s]+\.(?:mp4|m3u8|webm|ogg)`)
	quotedMediaRe = regexp.MustCompile(`(?i)["'](https?://[^"'\s]+\.(?:mp4|m3u8|webm|ogg))["']`)
	mp4URLRe      = regexp.MustCompile(`(?i)https?://[^"'\s]*\.mp4[^"'\s]*`)
	wibufileRe    = regexp.MustCompile(`(?i)https?://[^"'\s]*wibufile\.com[^"'\s]*\.mp4[^"'\s]*`)
	googleVideoRe = regexp.MustCompile(`(?i)https?://[^"'\s]*googlevideo\.com[^"'\s]*`)
	srcMediaRe    = regexp.MustCompile(`(?i)src="([^"]*\.(?:mp4|m3u8|webm|ogg)[^"]*)"`)
	ajaxIframeRe  = regexp.MustCompile(`(?i)src="([^"]*\.mp4[^"]*)"`)
	trailingNumRe = regexp.MustCompile(`/(\d+)/?$`)
	plausibleIDRe = regexp.MustCompile(`\d{4,8}`)
)

// postIDPatterns are the inline-script shapes a numeric post id hides in.
var postIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)var\s+post_id\s*=\s*['"]?(\d+)['"]?`),
	regexp.MustCompile(`(?i)"post"\s*:\s*['"]?(\d+)['"]?`),
	regexp.MustCompile(`(?i)post_id\s*=\s*['"]?(\d+)['"]?`),
	regexp.MustCompile(`(?i)post\s*:\s*['"]?(\d+)['"]?`),
	regexp.MustCompile(`(?i)id\s*:\s*['"]?(\d+)['"]?`),
	regexp.MustCompile(`(?i)episode_id\s*=\s*['"]?(\d+)['"]?`),
}

// VideoConfig controls the locator's ajax retry policy and timeouts.
type VideoConfig struct {
	PageTimeout time.Duration
	AjaxTimeout time.Duration
	AjaxRetries int
	RetryDelay  time.Duration
}

// VideoLocator resolves a playable media URL for an episode page.
type VideoLocator struct {
	fetcher Fetcher
	baseURL string
	cfg     VideoConfig
	logger  *zap.Logger
}

// NewVideoLocator builds a locator against the site base URL.
func NewVideoLocator(fetcher Fetcher, baseURL string, cfg VideoConfig, logger *zap.Logger) *VideoLocator {
	if cfg.AjaxRetries <= 0 {
		cfg.AjaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &VideoLocator{fetcher: fetcher, baseURL: baseURL, cfg: cfg, logger: logger}
}

type videoContext struct {
	doc     *goquery.Document
	html    string
	options []PlayerOption
}

type videoStrategy struct {
	name string
	fn   func(*videoContext) string
}

// pageStrategies scan the original episode page after the ajax path has been
// exhausted, in priority order.
var pageStrategies = []videoStrategy{
	{"direct_video", func(c *videoContext) string {
		return firstAttr(c.doc.Find("video"), "src")
	}},
	{"video_source", func(c *videoContext) string {
		return firstAttr(c.doc.Find("video source"), "src")
	}},
	{"data", func(c *videoContext) string {
		return firstAttr(c.doc.Find("[data-video], [data-src], [data-url], [data-player]"),
			"data-video", "data-src", "data-url", "data-player")
	}},
	{"iframe_wibufile", func(c *videoContext) string {
		var found string
		c.doc.Find("iframe").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			src, _ := sel.Attr("src")
			if wibufileRe.MatchString(src) {
				found = src
				return false
			}
			return true
		})
		return found
	}},
	{"iframe_video", func(c *videoContext) string {
		var found string
		c.doc.Find("iframe").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			src, _ := sel.Attr("src")
			lower := strings.ToLower(src)
			if src != "" && (strings.Contains(lower, "video") || strings.Contains(lower, "stream") ||
				strings.Contains(lower, "player") || strings.Contains(lower, "embed")) {
				found = src
				return false
			}
			return true
		})
		return found
	}},
	{"script", func(c *videoContext) string {
		return firstScriptMatch(c.doc, mediaURLRe)
	}},
	{"js_video", func(c *videoContext) string {
		var found string
		c.doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if m := quotedMediaRe.FindStringSubmatch(sel.Text()); len(m) > 1 {
				found = m[1]
				return false
			}
			return true
		})
		return found
	}},
	{"player_option", func(c *videoContext) string {
		var found string
		c.doc.Find(`[id^="player-option-"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			inner, err := sel.Html()
			if err != nil {
				return true
			}
			if m := mediaURLRe.FindString(inner); m != "" {
				found = m
				return false
			}
			return true
		})
		return found
	}},
	{"player_embed", func(c *videoContext) string {
		embed := c.doc.Find("#player_embed, #pembed, .player-embed")
		if embed.Length() == 0 {
			return ""
		}
		inner, err := embed.Html()
		if err != nil {
			return ""
		}
		return mediaURLRe.FindString(inner)
	}},
	{"link_video", func(c *videoContext) string {
		var found string
		c.doc.Find("a, button").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, _ := sel.Attr("href")
			if mediaURLRe.MatchString(href) {
				found = href
				return false
			}
			return true
		})
		return found
	}},
	{"wibufile_video", func(c *videoContext) string {
		return wibufileRe.FindString(c.html)
	}},
	{"google_video", func(c *videoContext) string {
		return googleVideoRe.FindString(c.html)
	}},
	{"src_video", func(c *videoContext) string {
		if m := srcMediaRe.FindStringSubmatch(c.html); len(m) > 1 {
			return m[1]
		}
		return ""
	}},
	{"html_video", func(c *videoContext) string {
		return mediaURLRe.FindString(c.html)
	}},
	{"html_mp4", func(c *videoContext) string {
		return mp4URLRe.FindString(c.html)
	}},
}

// Locate fetches the episode page and runs the full resolution chain:
// player-option ajax lookups first, then the page-scan strategy table.
func (l *VideoLocator) Locate(ctx context.Context, episodeURL string) (VideoResult, error) {
	body, err := l.fetcher.Fetch(ctx, Request{
		URL: episodeURL,
		Headers: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
		Timeout: l.cfg.PageTimeout,
	})
	if err != nil {
		return VideoResult{}, fmt.Errorf("fetch episode page: %w", err)
	}

	doc, err := ParseDocument(body)
	if err != nil {
		return VideoResult{EpisodeURL: episodeURL, PlayerOptions: []PlayerOption{}}, nil
	}

	vc := &videoContext{doc: doc, html: string(body)}
	vc.options = enumeratePlayerOptions(doc)

	result := VideoResult{
		EpisodeURL:    episodeURL,
		PlayerOptions: vc.options,
	}

	postID := l.resolvePostID(vc, episodeURL)
	result.PostID = postID

	if postID != "" {
		for i := range vc.options {
			nume := i + 1
			videoURL := l.fetchVideoFromAPI(ctx, episodeURL, postID, nume, vc.options[i].Text)
			if videoURL == "" {
				continue
			}
			vc.options[i].VideoURL = videoURL
			if result.URL == "" {
				result.URL = videoURL
				result.Type = "api_fetch"
			}
		}
		result.PlayerOptions = vc.options
	}

	if result.URL == "" {
		for _, strategy := range pageStrategies {
			if videoURL := strategy.fn(vc); videoURL != "" {
				result.URL = videoURL
				result.Type = strategy.name
				break
			}
		}
	}

	if result.URL != "" {
		metrics.ObserveVideoStrategy(result.Type)
		l.logger.Info("resolved video",
			zap.String("url", result.URL),
			zap.String("strategy", result.Type),
			zap.String("episode", episodeURL))
	} else {
		l.logger.Info("no video found after exhausting strategies",
			zap.String("episode", episodeURL),
			zap.Int("player_options", len(vc.options)))
	}
	return result, nil
}

func enumeratePlayerOptions(doc *goquery.Document) []PlayerOption {
	options := []PlayerOption{}
	doc.Find(`[id^="player-option-"]`).Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("id")
		options = append(options, PlayerOption{
			ID:        id,
			Text:      strings.TrimSpace(sel.Text()),
			ClassName: sel.AttrOr("class", ""),
		})
	})
	return options
}

// resolvePostID walks the post-id fallback chain: hidden input, inline
// script patterns, meta tag, data attribute, URL path, then the first
// plausible 4-8 digit number on the page outside the year range.
func (l *VideoLocator) resolvePostID(vc *videoContext, episodeURL string) string {
	if v, ok := vc.doc.Find(`input[name="post_id"]`).Attr("value"); ok && v != "" {
		return v
	}

	var fromScript string
	vc.doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		content := sel.Text()
		for _, pattern := range postIDPatterns {
			if m := pattern.FindStringSubmatch(content); len(m) > 1 {
				fromScript = m[1]
				return false
			}
		}
		return true
	})
	if fromScript != "" {
		return fromScript
	}

	if v, ok := vc.doc.Find(`meta[name="post_id"]`).Attr("content"); ok && v != "" {
		return v
	}
	if v, ok := vc.doc.Find("[data-post-id]").Attr("data-post-id"); ok && v != "" {
		return v
	}
	if m := trailingNumRe.FindStringSubmatch(episodeURL); len(m) > 1 {
		return m[1]
	}

	for _, candidate := range plausibleIDRe.FindAllString(vc.html, -1) {
		if plausiblePostID(candidate) {
			return candidate
		}
	}
	l.logger.Debug("no post id found on page", zap.String("episode", episodeURL))
	return ""
}

// plausiblePostID rejects numbers that read as years or dates.
func plausiblePostID(candidate string) bool {
	n, err := strconv.Atoi(candidate)
	if err != nil {
		return false
	}
	if n >= 1900 && n <= 2100 {
		return false
	}
	return n >= 1000
}

// fetchVideoFromAPI calls the internal player endpoint for one option with
// retry, then scans the response for an iframe or direct media URL.
func (l *VideoLocator) fetchVideoFromAPI(ctx context.Context, episodeURL, postID string, nume int, label string) string {
	endpoint := l.baseURL + "wp-admin/admin-ajax.php"
	form := map[string]string{
		"action": "player_ajax",
		"post":   postID,
		"nume":   strconv.Itoa(nume),
		"type":   "schtml",
	}
	headers := http.Header{
		"Content-Type":    {"application/x-www-form-urlencoded"},
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.5"},
		"Referer":         {episodeURL},
		"Origin":          {strings.TrimSuffix(l.baseURL, "/")},
	}

	var body []byte
	var err error
	for attempt := 1; attempt <= l.cfg.AjaxRetries; attempt++ {
		body, err = l.fetcher.Fetch(ctx, Request{
			URL:     endpoint,
			Method:  http.MethodPost,
			Form:    form,
			Headers: headers,
			Timeout: l.cfg.AjaxTimeout,
		})
		if err == nil {
			break
		}
		l.logger.Warn("player ajax attempt failed",
			zap.String("option", label),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < l.cfg.AjaxRetries {
			if !sleepCtx(ctx, l.cfg.RetryDelay) {
				return ""
			}
		}
	}
	if err != nil {
		return ""
	}
	return extractVideoFromAjaxResponse(body)
}

// extractVideoFromAjaxResponse scans an ajax response for an iframe src,
// then a direct media src attribute, then a known-host URL.
func extractVideoFromAjaxResponse(body []byte) string {
	if doc, err := ParseDocument(body); err == nil {
		if src, ok := doc.Find("iframe").First().Attr("src"); ok {
			if strings.Contains(src, ".mp4") || strings.Contains(src, "wibufile.com") {
				return src
			}
		}
	}
	raw := string(body)
	if m := ajaxIframeRe.FindStringSubmatch(raw); len(m) > 1 {
		return m[1]
	}
	return wibufileRe.FindString(raw)
}

func firstAttr(sel *goquery.Selection, attrs ...string) string {
	var found string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range attrs {
			if v, ok := s.Attr(attr); ok && v != "" {
				found = v
				return false
			}
		}
		return true
	})
	return found
}

func firstScriptMatch(doc *goquery.Document, re *regexp.Regexp) string {
	var found string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if m := re.FindString(sel.Text()); m != "" {
			found = m
			return false
		}
		return true
	})
	return found
}

// sleepCtx waits for d or until ctx is done; it reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
