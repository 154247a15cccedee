package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/gitgitmiko/gitanime-backend/internal/metrics"
)

const (
	latestPath  = "anime-terbaru/"
	catalogPath = "daftar-anime-2/"
)

// SessionConfig controls the orchestrated scrape passes.
type SessionConfig struct {
	DetailDelay time.Duration // between per-anime detail fetches in a full pass
	BatchEnd    int           // default bounded batch end page
}

// Session orchestrates scrape passes over one source site. At most one full
// pass runs at a time; a trigger arriving while one is in flight is a no-op.
// The guard is a session field, not shared state, so independent sessions
// (e.g. under test) never interfere.
type Session struct {
	fetcher Fetcher
	walker  *Walker
	images  *ImageResolver
	video   *VideoLocator
	store   Store
	baseURL string
	cfg     SessionConfig
	logger  *zap.Logger
	jikan   *JikanResolver
	running atomic.Bool
	now     func() time.Time
}

// NewSession wires a Session from its collaborators.
func NewSession(
	fetcher Fetcher,
	walker *Walker,
	images *ImageResolver,
	video *VideoLocator,
	store Store,
	baseURL string,
	cfg SessionConfig,
	logger *zap.Logger,
) *Session {
	if cfg.BatchEnd <= 0 {
		cfg.BatchEnd = 10
	}
	return &Session{
		fetcher: fetcher,
		walker:  walker,
		images:  images,
		video:   video,
		store:   store,
		baseURL: baseURL,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// UseJikan enables the network-backed image lookup for pages that carry no
// usable artwork of their own.
func (s *Session) UseJikan(j *JikanResolver) {
	s.jikan = j
}

func (s *Session) resolveImage(ctx context.Context, title string) string {
	if s.jikan != nil {
		return s.jikan.Resolve(ctx, title)
	}
	return s.images.Resolve(title)
}

// Running reports whether a guarded pass is in flight.
func (s *Session) Running() bool {
	return s.running.Load()
}

func (s *Session) acquire() bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("scrape already in progress, skipping trigger")
		metrics.ObserveSkippedRun()
		return false
	}
	metrics.SetInFlight(true)
	return true
}

func (s *Session) release() {
	s.running.Store(false)
	metrics.SetInFlight(false)
}

// RunFullScrape executes the daily pass: latest episodes, per-anime episode
// expansion, then a merge-write of anime-data that preserves the untouched
// sibling collections. A concurrent trigger returns ErrScrapeInProgress.
func (s *Session) RunFullScrape(ctx context.Context) error {
	if !s.acquire() {
		return ErrScrapeInProgress
	}
	defer s.release()

	start := s.now()
	s.logger.Info("starting full scrape pass")

	latest, err := s.scrapeLatestEpisodes(ctx)
	if err != nil {
		return fmt.Errorf("scrape latest episodes: %w", err)
	}

	allEpisodes := s.expandAllEpisodes(ctx, latest)

	existing, err := s.store.ReadAnimeData(ctx)
	if err != nil {
		s.logger.Info("no existing anime data, starting fresh", zap.Error(err))
		existing = AnimeDataDocument{}
	}

	doc := AnimeDataDocument{
		Anime:          orEmptyAnime(existing.Anime),
		Episodes:       orEmptyEpisodes(existing.Episodes),
		LatestEpisodes: allEpisodes,
		LastUpdated:    s.now().UTC().Format(time.RFC3339),
		TotalAnime:     len(existing.Anime),
		TotalEpisodes:  len(allEpisodes),
	}
	if err := s.store.WriteAnimeData(ctx, doc); err != nil {
		return fmt.Errorf("persist anime data: %w", err)
	}

	metrics.ObserveRun("full", s.now().Sub(start))
	s.logger.Info("full scrape pass completed",
		zap.Int("latest_episodes", len(latest)),
		zap.Int("total_episodes", len(allEpisodes)),
		zap.Duration("took", s.now().Sub(start)))
	return nil
}

// RunAnimeListBatch walks the catalog pages in [start, end] (end == 0 means
// unbounded) and persists the resulting anime-list document.
func (s *Session) RunAnimeListBatch(ctx context.Context, startPage, endPage int) (AnimeListDocument, error) {
	if !s.acquire() {
		return AnimeListDocument{}, ErrScrapeInProgress
	}
	defer s.release()

	started := s.now()
	entries, err := s.walkAnimeList(ctx, startPage, endPage)
	if err != nil {
		return AnimeListDocument{}, err
	}
	doc, err := s.SaveAnimeList(ctx, entries)
	if err != nil {
		return AnimeListDocument{}, err
	}
	metrics.ObserveRun("anime_list_batch", s.now().Sub(started))
	return doc, nil
}

// RunLatestEpisodesBatch walks the latest-release pages in [start, end]
// (end == 0 means unbounded) and persists the latest-episodes document.
func (s *Session) RunLatestEpisodesBatch(ctx context.Context, startPage, endPage int) (LatestEpisodesDocument, error) {
	if !s.acquire() {
		return LatestEpisodesDocument{}, ErrScrapeInProgress
	}
	defer s.release()

	started := s.now()
	episodes, err := s.walkLatestEpisodes(ctx, startPage, endPage)
	if err != nil {
		return LatestEpisodesDocument{}, err
	}
	doc, err := s.SaveLatestEpisodes(ctx, episodes)
	if err != nil {
		return LatestEpisodesDocument{}, err
	}
	metrics.ObserveRun("latest_batch", s.now().Sub(started))
	return doc, nil
}

func (s *Session) walkAnimeList(ctx context.Context, startPage, endPage int) ([]AnimeListEntry, error) {
	return Walk(ctx, s.walker, "anime_list", catalogPath,
		WalkOptions{StartPage: startPage, EndPage: endPage},
		func(doc *goquery.Document, _ int) []AnimeListEntry {
			return ExtractAnimeEntries(doc, s.baseURL, s.now())
		},
		func(e AnimeListEntry) string { return e.Title },
	)
}

func (s *Session) walkLatestEpisodes(ctx context.Context, startPage, endPage int) ([]LatestEpisode, error) {
	// Latest episodes are keyed per page: the same episode reappearing on an
	// adjacent page during pagination drift is kept, per the data contract.
	return Walk(ctx, s.walker, "latest_episodes", latestPath,
		WalkOptions{StartPage: startPage, EndPage: endPage},
		func(doc *goquery.Document, page int) []LatestEpisode {
			return ExtractLatestEpisodes(doc, s.baseURL, page, s.images, s.now())
		},
		func(e LatestEpisode) string { return fmt.Sprintf("%s#%d", e.ID, e.PageNumber) },
	)
}

// scrapeLatestEpisodes fetches the first latest-release page only, as the
// full pass does.
func (s *Session) scrapeLatestEpisodes(ctx context.Context) ([]LatestEpisode, error) {
	body, err := s.fetcher.Fetch(ctx, Request{URL: s.baseURL + latestPath})
	if err != nil {
		observeFetchError(err)
		return nil, err
	}
	doc, err := ParseDocument(body)
	if err != nil {
		return []LatestEpisode{}, nil
	}
	episodes := ExtractLatestEpisodes(doc, s.baseURL, 1, s.images, s.now())
	metrics.ObserveRecords("latest_episodes", len(episodes))
	s.logger.Info("scraped latest episodes", zap.Int("count", len(episodes)))
	return episodes, nil
}

// expandAllEpisodes visits each distinct anime's detail page and collects
// its full episode list, carrying over bylines from the listing rows.
// Per-anime failures are logged and skipped; a pass always yields at least
// the listing rows it started from.
func (s *Session) expandAllEpisodes(ctx context.Context, latest []LatestEpisode) []LatestEpisode {
	titles := []string{}
	byTitle := map[string][]LatestEpisode{}
	for _, ep := range latest {
		if _, ok := byTitle[ep.Title]; !ok {
			titles = append(titles, ep.Title)
		}
		byTitle[ep.Title] = append(byTitle[ep.Title], ep)
	}

	all := []LatestEpisode{}
	for _, title := range titles {
		source := byTitle[title][0]
		detailURL := AnimeURLFromEpisodeLink(source.Link)
		detail, err := s.ScrapeAnimeDetail(ctx, detailURL)
		if err != nil {
			s.logger.Warn("detail scrape failed, keeping listing rows",
				zap.String("anime", title), zap.Error(err))
			all = append(all, byTitle[title]...)
			continue
		}

		image := detail.ImageURL
		if image == "" {
			image = s.resolveImage(ctx, title)
		}
		for _, ref := range detail.Episodes {
			ep := LatestEpisode{
				ID:            EpisodeSlug(title, ref.Number),
				Title:         title,
				EpisodeNumber: ref.Number,
				Link:          ref.Link,
				AnimeID:       Slug(title),
				ImageURL:      image,
				Screenshot:    image,
				CreatedAt:     s.now().UTC().Format(time.RFC3339),
			}
			if orig := findByNumber(byTitle[title], ref.Number); orig != nil {
				ep.PostedBy = orig.PostedBy
				ep.ReleasedOn = orig.ReleasedOn
				ep.PageNumber = orig.PageNumber
			}
			all = append(all, ep)
		}
		s.logger.Info("expanded episodes",
			zap.String("anime", title),
			zap.Int("episodes", len(detail.Episodes)))

		if !sleepCtx(ctx, s.cfg.DetailDelay) {
			break
		}
	}

	if len(all) == 0 {
		return latest
	}
	return all
}

// ScrapeAnimeDetail fetches and extracts one anime detail page. Episode
// URLs are not valid detail pages; callers wanting episode metadata use
// ScrapeEpisodeDetail (Detail dispatches on the URL shape).
func (s *Session) ScrapeAnimeDetail(ctx context.Context, pageURL string) (AnimeDetail, error) {
	body, err := s.fetcher.Fetch(ctx, Request{URL: pageURL})
	if err != nil {
		observeFetchError(err)
		return AnimeDetail{}, fmt.Errorf("fetch anime detail: %w", err)
	}
	doc, err := ParseDocument(body)
	if err != nil {
		return AnimeDetail{}, err
	}
	detail := ExtractAnimeDetail(doc, pageURL, s.baseURL)
	if detail.ImageURL == "" {
		detail.ImageURL = s.resolveImage(ctx, detail.Title)
	}
	s.logger.Info("scraped anime detail",
		zap.String("title", detail.Title),
		zap.Int("episodes", len(detail.Episodes)))
	return detail, nil
}

// ScrapeEpisodeDetail fetches and extracts one episode page.
func (s *Session) ScrapeEpisodeDetail(ctx context.Context, pageURL string) (EpisodeDetail, error) {
	body, err := s.fetcher.Fetch(ctx, Request{URL: pageURL})
	if err != nil {
		observeFetchError(err)
		return EpisodeDetail{}, fmt.Errorf("fetch episode detail: %w", err)
	}
	doc, err := ParseDocument(body)
	if err != nil {
		return EpisodeDetail{}, err
	}
	detail := ExtractEpisodeDetail(doc, pageURL, s.baseURL, s.images)
	s.logger.Info("scraped episode detail",
		zap.String("title", detail.Title),
		zap.String("episode", detail.EpisodeNumber))
	return detail, nil
}

// DetailResult is the tagged outcome of a detail scrape: exactly one of the
// two fields is set, depending on the URL shape.
type DetailResult struct {
	Anime   *AnimeDetail
	Episode *EpisodeDetail
}

// Detail dispatches a detail-page URL to the matching extractor: URLs
// containing "episode" are episode pages, everything else is an anime page.
func (s *Session) Detail(ctx context.Context, pageURL string) (DetailResult, error) {
	if strings.Contains(pageURL, "episode") {
		ep, err := s.ScrapeEpisodeDetail(ctx, pageURL)
		if err != nil {
			return DetailResult{}, err
		}
		return DetailResult{Episode: &ep}, nil
	}
	anime, err := s.ScrapeAnimeDetail(ctx, pageURL)
	if err != nil {
		return DetailResult{}, err
	}
	return DetailResult{Anime: &anime}, nil
}

// ScrapeEpisodeVideo runs the video locator for one episode page. Video
// lookups are independent of the full-pass guard.
func (s *Session) ScrapeEpisodeVideo(ctx context.Context, episodeURL string) (VideoResult, error) {
	return s.video.Locate(ctx, episodeURL)
}

// SaveAnimeList persists entries as the anime-list document. Totals are
// recomputed from the collection length on every write.
func (s *Session) SaveAnimeList(ctx context.Context, entries []AnimeListEntry) (AnimeListDocument, error) {
	doc := AnimeListDocument{
		AnimeList:   orEmptyAnime(entries),
		TotalAnime:  len(entries),
		LastUpdated: s.now().UTC().Format(time.RFC3339),
		Source:      s.baseURL + catalogPath,
	}
	if err := s.store.WriteAnimeList(ctx, doc); err != nil {
		return AnimeListDocument{}, fmt.Errorf("persist anime list: %w", err)
	}
	s.logger.Info("anime list saved", zap.Int("total", doc.TotalAnime))
	return doc, nil
}

// SaveLatestEpisodes persists episodes as the latest-episodes document.
func (s *Session) SaveLatestEpisodes(ctx context.Context, episodes []LatestEpisode) (LatestEpisodesDocument, error) {
	doc := LatestEpisodesDocument{
		LatestEpisodes: orEmptyEpisodes(episodes),
		TotalEpisodes:  len(episodes),
		LastUpdated:    s.now().UTC().Format(time.RFC3339),
		Source:         s.baseURL + latestPath,
	}
	if err := s.store.WriteLatestEpisodes(ctx, doc); err != nil {
		return LatestEpisodesDocument{}, fmt.Errorf("persist latest episodes: %w", err)
	}
	s.logger.Info("latest episodes saved", zap.Int("total", doc.TotalEpisodes))
	return doc, nil
}

func findByNumber(episodes []LatestEpisode, number string) *LatestEpisode {
	for i := range episodes {
		if episodes[i].EpisodeNumber == number {
			return &episodes[i]
		}
	}
	return nil
}

func orEmptyAnime(entries []AnimeListEntry) []AnimeListEntry {
	if entries == nil {
		return []AnimeListEntry{}
	}
	return entries
}

func orEmptyEpisodes(episodes []LatestEpisode) []LatestEpisode {
	if episodes == nil {
		return []LatestEpisode{}
	}
	return episodes
}
