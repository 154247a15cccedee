// Package scraper implements the extraction and resilience pipeline for the
// upstream anime site: fetching, defensive field extraction, pagination,
// image resolution and video discovery.
package scraper

import (
	"context"
	"time"
)

// AnimeListEntry is one catalog row produced by anime-list page scraping.
type AnimeListEntry struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Rating      string   `json:"rating,omitempty"`
	Status      string   `json:"status,omitempty"`
	Type        string   `json:"type,omitempty"`
	Genres      []string `json:"genres"`
	Description string   `json:"description,omitempty"`
	EpisodeInfo string   `json:"episodeInfo,omitempty"`
	ScrapedAt   string   `json:"scrapedAt"`
}

// LatestEpisode is one "latest releases" listing row. The same episode may
// reappear on adjacent pages during pagination drift; entries are not
// deduplicated across pages.
type LatestEpisode struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	EpisodeNumber string `json:"episodeNumber,omitempty"`
	Link          string `json:"link"`
	PostedBy      string `json:"postedBy,omitempty"`
	ReleasedOn    string `json:"releasedOn,omitempty"`
	AnimeID       string `json:"animeId"`
	ImageURL      string `json:"image,omitempty"`
	Screenshot    string `json:"episodeScreenshot,omitempty"`
	PageNumber    int    `json:"pageNumber,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

// EpisodeRef is one episode link discovered on an anime detail page.
type EpisodeRef struct {
	Number string `json:"number"`
	Title  string `json:"title"`
	Link   string `json:"link"`
	ID     string `json:"id"`
}

// AnimeDetail is the structured result of scraping one anime detail page.
type AnimeDetail struct {
	Title        string       `json:"title"`
	Japanese     string       `json:"japanese,omitempty"`
	English      string       `json:"english,omitempty"`
	Status       string       `json:"status,omitempty"`
	Type         string       `json:"type,omitempty"`
	Source       string       `json:"source,omitempty"`
	Duration     string       `json:"duration,omitempty"`
	TotalEpisode string       `json:"totalEpisode,omitempty"`
	Season       string       `json:"season,omitempty"`
	Studio       string       `json:"studio,omitempty"`
	Released     string       `json:"released,omitempty"`
	Genres       []string     `json:"genres"`
	Episodes     []EpisodeRef `json:"episodes"`
	ImageURL     string       `json:"image,omitempty"`
	SourceURL    string       `json:"url"`
	ID           string       `json:"id"`
}

// EpisodeDetail is the structured result of scraping one episode page.
type EpisodeDetail struct {
	Title         string `json:"title"`
	EpisodeNumber string `json:"episodeNumber,omitempty"`
	EpisodeTitle  string `json:"episodeTitle,omitempty"`
	PostedBy      string `json:"postedBy,omitempty"`
	ReleasedOn    string `json:"releasedOn,omitempty"`
	EpisodeURL    string `json:"episodeUrl"`
	AnimeURL      string `json:"animeUrl,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
	ID            string `json:"id"`
}

// PlayerOption is one upstream player tab on an episode page, plus the video
// URL resolved for it (if any).
type PlayerOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ClassName string `json:"className"`
	VideoURL  string `json:"videoUrl,omitempty"`
}

// VideoResult is the transient outcome of a video lookup. A nil-URL result
// is a valid terminal state meaning "not found", distinct from a fetch error.
type VideoResult struct {
	URL           string         `json:"url,omitempty"`
	Type          string         `json:"type,omitempty"`
	EpisodeURL    string         `json:"episodeUrl"`
	PlayerOptions []PlayerOption `json:"playerOptions"`
	PostID        string         `json:"postId,omitempty"`
}

// Found reports whether any strategy resolved a playable URL.
func (v VideoResult) Found() bool {
	return v.URL != ""
}

// Store persists the scraped document set. Implementations live outside this
// package; each write fully replaces the named document.
type Store interface {
	ReadAnimeData(ctx context.Context) (AnimeDataDocument, error)
	WriteAnimeData(ctx context.Context, doc AnimeDataDocument) error
	ReadAnimeList(ctx context.Context) (AnimeListDocument, error)
	WriteAnimeList(ctx context.Context, doc AnimeListDocument) error
	ReadLatestEpisodes(ctx context.Context) (LatestEpisodesDocument, error)
	WriteLatestEpisodes(ctx context.Context, doc LatestEpisodesDocument) error
	AnimeListUpdatedAt(ctx context.Context) (time.Time, bool)
}

// AnimeListDocument is the persisted shape of anime-list.json.
type AnimeListDocument struct {
	AnimeList   []AnimeListEntry `json:"animeList"`
	TotalAnime  int              `json:"totalAnime"`
	LastUpdated string           `json:"lastUpdated"`
	Source      string           `json:"source"`
}

// LatestEpisodesDocument is the persisted shape of latest-episodes.json.
type LatestEpisodesDocument struct {
	LatestEpisodes []LatestEpisode `json:"latestEpisodes"`
	TotalEpisodes  int             `json:"totalEpisodes"`
	LastUpdated    string          `json:"lastUpdated"`
	Source         string          `json:"source"`
}

// AnimeDataDocument is the persisted shape of anime-data.json. A pass that
// only refreshes latestEpisodes preserves the sibling collections.
type AnimeDataDocument struct {
	Anime          []AnimeListEntry `json:"anime"`
	Episodes       []LatestEpisode  `json:"episodes"`
	LatestEpisodes []LatestEpisode  `json:"latestEpisodes"`
	LastUpdated    string           `json:"lastUpdated"`
	TotalAnime     int              `json:"totalAnime"`
	TotalEpisodes  int              `json:"totalEpisodes"`
}
