package api

import (
	"errors"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gitgitmiko/gitanime-backend/internal/scraper"
	"github.com/gitgitmiko/gitanime-backend/internal/store"
)

const defaultPageSize = 20

// daysAgoRe matches the site's relative release stamps, e.g. "3 days yang lalu".
var daysAgoRe = regexp.MustCompile(`(?i)(\d+)\s+days?\s+yang\s+lalu`)

type pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

func (s *Server) listAnime(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.ReadAnimeData(r.Context())
	if err != nil {
		s.logger.Error("read anime data failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch anime data")
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultPageSize)
	search := strings.ToLower(r.URL.Query().Get("search"))

	episodes := make([]scraper.LatestEpisode, 0, len(doc.LatestEpisodes))
	for _, ep := range doc.LatestEpisodes {
		if ep.ReleasedOn == "" {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(ep.Title), search) {
			continue
		}
		episodes = append(episodes, ep)
	}

	// Newest first: "0 days yang lalu" sorts ahead of "3 days yang lalu".
	// Stamps without a day count default to day zero.
	sort.SliceStable(episodes, func(i, j int) bool {
		return daysAgo(episodes[i].ReleasedOn) < daysAgo(episodes[j].ReleasedOn)
	})

	pageItems, pg := paginate(episodes, page, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"anime":      pageItems,
		"pagination": pg,
	})
}

type episodeSummary struct {
	ID            string `json:"id"`
	EpisodeNumber string `json:"episodeNumber,omitempty"`
	PostedBy      string `json:"postedBy,omitempty"`
	ReleasedOn    string `json:"releasedOn,omitempty"`
	EpisodeURL    string `json:"episodeUrl"`
	CreatedAt     string `json:"createdAt"`
}

type animeGroup struct {
	Title         string           `json:"title"`
	TotalEpisodes int              `json:"totalEpisodes"`
	Episodes      []episodeSummary `json:"episodes"`
	LatestEpisode *episodeSummary  `json:"latestEpisode"`
	ImageURL      string           `json:"imageUrl,omitempty"`
	AnimeURL      string           `json:"animeUrl,omitempty"`
}

func (s *Server) latestUpdates(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.ReadAnimeData(r.Context())
	if err != nil {
		s.logger.Error("read anime data failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch latest episodes")
		return
	}

	order := []string{}
	groups := map[string]*animeGroup{}
	for _, ep := range doc.LatestEpisodes {
		g, ok := groups[ep.Title]
		if !ok {
			g = &animeGroup{
				Title:    ep.Title,
				ImageURL: ep.ImageURL,
				AnimeURL: scraper.AnimeURLFromEpisodeLink(ep.Link),
			}
			groups[ep.Title] = g
			order = append(order, ep.Title)
		}
		summary := episodeSummary{
			ID:            ep.ID,
			EpisodeNumber: ep.EpisodeNumber,
			PostedBy:      ep.PostedBy,
			ReleasedOn:    ep.ReleasedOn,
			EpisodeURL:    ep.Link,
			CreatedAt:     ep.CreatedAt,
		}
		g.TotalEpisodes++
		g.Episodes = append(g.Episodes, summary)
		if g.LatestEpisode == nil || summary.CreatedAt > g.LatestEpisode.CreatedAt {
			latest := summary
			g.LatestEpisode = &latest
		}
	}

	list := make([]*animeGroup, 0, len(order))
	for _, title := range order {
		list = append(list, groups[title])
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].LatestEpisode, list[j].LatestEpisode
		if a == nil || b == nil {
			return false
		}
		return a.CreatedAt > b.CreatedAt
	})

	summaryList := make([]map[string]any, 0, len(list))
	for _, g := range list {
		summaryList = append(summaryList, map[string]any{
			"title":         g.Title,
			"totalEpisodes": g.TotalEpisodes,
			"latestEpisode": g.LatestEpisode,
			"imageUrl":      g.ImageURL,
			"animeUrl":      g.AnimeURL,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"latest": list,
		"summary": map[string]any{
			"totalAnime":    len(list),
			"totalEpisodes": len(doc.LatestEpisodes),
			"animeList":     summaryList,
		},
	})
}

func (s *Server) animeCatalog(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultPageSize)
	search := strings.ToLower(r.URL.Query().Get("search"))
	forceRefresh := r.URL.Query().Get("forceRefresh") == "true"

	shouldScrape := forceRefresh
	if !shouldScrape {
		updatedAt, ok := s.store.AnimeListUpdatedAt(r.Context())
		shouldScrape = !ok || time.Since(updatedAt) > s.cfg.StaleAfter()
	}

	var doc scraper.AnimeListDocument
	var err error
	if shouldScrape {
		s.logger.Info("anime list stale, scraping fresh catalog")
		doc, err = s.scraper.RunAnimeListBatch(r.Context(), 1, 10)
		if errors.Is(err, scraper.ErrScrapeInProgress) {
			doc, err = s.store.ReadAnimeList(r.Context())
		}
	} else {
		doc, err = s.store.ReadAnimeList(r.Context())
	}
	if err != nil {
		s.logger.Error("anime list fetch failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to fetch anime list")
		return
	}

	filtered := make([]scraper.AnimeListEntry, 0, len(doc.AnimeList))
	for _, a := range doc.AnimeList {
		if search != "" && !matchesCatalogSearch(a, search) {
			continue
		}
		filtered = append(filtered, a)
	}

	pageItems, pg := paginate(filtered, page, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"anime":      pageItems,
			"pagination": pg,
			"summary": map[string]any{
				"totalAnime":  doc.TotalAnime,
				"lastUpdated": doc.LastUpdated,
				"source":      doc.Source,
			},
		},
	})
}

func matchesCatalogSearch(a scraper.AnimeListEntry, search string) bool {
	if strings.Contains(strings.ToLower(a.Title), search) {
		return true
	}
	if strings.Contains(strings.ToLower(a.Description), search) {
		return true
	}
	for _, genre := range a.Genres {
		if strings.Contains(strings.ToLower(genre), search) {
			return true
		}
	}
	return false
}

func (s *Server) animeDetail(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		writeFailure(w, http.StatusBadRequest, "URL parameter is required")
		return
	}

	result, err := s.scraper.Detail(r.Context(), pageURL)
	if err != nil {
		s.logger.Warn("detail scrape failed", zap.String("url", pageURL), zap.Error(err))
		writeFailure(w, http.StatusNotFound, "Anime not found or failed to scrape")
		return
	}

	var data any
	if result.Episode != nil {
		data = result.Episode
	} else {
		data = result.Anime
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func (s *Server) episodeVideo(w http.ResponseWriter, r *http.Request) {
	episodeURL := r.URL.Query().Get("url")
	if episodeURL == "" {
		writeFailure(w, http.StatusBadRequest, "URL parameter is required")
		return
	}

	video, err := s.scraper.ScrapeEpisodeVideo(r.Context(), episodeURL)
	if err != nil {
		s.logger.Warn("video scrape failed", zap.String("url", episodeURL), zap.Error(err))
		writeFailure(w, http.StatusNotFound, "Video not found or failed to scrape")
		return
	}
	// A lookup that completed without finding a URL is still a 200; the
	// payload carries the player options and a null url.
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": video})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.ReadSettings(r.Context())
	if err != nil {
		s.logger.Error("read settings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch configuration")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type updateSettingsRequest struct {
	Password string `json:"password"`
	TestAuth bool   `json:"testAuth"`
	store.SettingsPatch
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.authorized(w, req.Password) {
		return
	}
	if req.TestAuth {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Authentication successful"})
		return
	}
	if _, err := s.store.UpdateSettings(r.Context(), req.SettingsPatch); err != nil {
		s.logger.Error("update settings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update configuration")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Configuration updated successfully"})
}

type triggerRequest struct {
	Password  string `json:"password"`
	StartPage int    `json:"startPage"`
	EndPage   int    `json:"endPage"`
}

func (s *Server) triggerFullScrape(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.authorized(w, req.Password) {
		return
	}

	err := s.scraper.RunFullScrape(r.Context())
	if errors.Is(err, scraper.ErrScrapeInProgress) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Scraping already in progress"})
		return
	}
	if err != nil {
		s.logger.Error("manual scrape failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to scrape data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Scraping completed successfully"})
}

func (s *Server) triggerCatalogScrape(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.authorized(w, req.Password) {
		return
	}
	s.runCatalogBatch(w, r, 1, 10)
}

func (s *Server) triggerCatalogBatch(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.authorized(w, req.Password) {
		return
	}
	start, end := req.StartPage, req.EndPage
	if start <= 0 {
		start = 1
	}
	if end <= 0 {
		end = 10
	}
	s.runCatalogBatch(w, r, start, end)
}

func (s *Server) runCatalogBatch(w http.ResponseWriter, r *http.Request, start, end int) {
	doc, err := s.scraper.RunAnimeListBatch(r.Context(), start, end)
	if errors.Is(err, scraper.ErrScrapeInProgress) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Anime list scraping already in progress",
		})
		return
	}
	if err != nil {
		s.logger.Error("anime list scrape failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to scrape anime list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Anime list scraping completed successfully",
		"data": map[string]any{
			"totalAnime":   doc.TotalAnime,
			"lastUpdated":  doc.LastUpdated,
			"pagesScraped": strconv.Itoa(start) + "-" + strconv.Itoa(end),
		},
	})
}

func (s *Server) authorized(w http.ResponseWriter, password string) bool {
	if password != s.cfg.Auth.AdminPassword {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return false
	}
	return true
}

func daysAgo(releasedOn string) int {
	m := daysAgoRe.FindStringSubmatch(releasedOn)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func paginate[T any](items []T, page, limit int) ([]T, pagination) {
	total := len(items)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return items[start:end], pagination{
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalItems:   total,
		ItemsPerPage: limit,
	}
}
