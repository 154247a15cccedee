// Package store implements JSON document persistence on the local
// filesystem for the scraped collections and runtime settings.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gitgitmiko/gitanime-backend/internal/metrics"
	"github.com/gitgitmiko/gitanime-backend/internal/scraper"
)

// Config captures the parameters for the file store.
type Config struct {
	// BaseDir is the directory holding the JSON documents.
	BaseDir string

	AnimeDataFile string
	AnimeListFile string
	LatestFile    string
	SettingsFile  string
}

// Settings is the runtime scrape settings document, editable over the API.
type Settings struct {
	SourceURL        string `json:"sourceUrl"`
	ScrapingInterval string `json:"scrapingInterval"`
	AutoScraping     bool   `json:"autoScraping"`
}

// DefaultSettings returns the settings document written when none exists.
func DefaultSettings() Settings {
	return Settings{
		SourceURL:        "https://v1.samehadaku.how/",
		ScrapingInterval: "0 0 * * *",
		AutoScraping:     true,
	}
}

// FileStore persists documents as pretty-printed JSON files, one per
// collection. Writes go through a temp file and rename so readers never
// observe a partially written document.
type FileStore struct {
	baseDir string
	cfg     Config
	logger  *zap.Logger
}

// New validates the base directory and returns a FileStore.
func New(cfg Config, logger *zap.Logger) (*FileStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	if cfg.AnimeDataFile == "" {
		cfg.AnimeDataFile = "anime-data.json"
	}
	if cfg.AnimeListFile == "" {
		cfg.AnimeListFile = "anime-list.json"
	}
	if cfg.LatestFile == "" {
		cfg.LatestFile = "latest-episodes.json"
	}
	if cfg.SettingsFile == "" {
		cfg.SettingsFile = "config.json"
	}

	return &FileStore{baseDir: cfg.BaseDir, cfg: cfg, logger: logger}, nil
}

var _ scraper.Store = (*FileStore)(nil)

func (s *FileStore) path(name string) string {
	return filepath.Join(s.baseDir, name)
}

func (s *FileStore) readJSON(name string, out any) error {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *FileStore) writeJSON(name string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.baseDir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}

	metrics.ObserveDocumentWrite(name)
	s.logger.Debug("document written", zap.String("file", name), zap.Int("bytes", len(data)))
	return nil
}

// ReadAnimeData loads anime-data.json. A missing file yields an empty
// document with non-nil collections, not an error.
func (s *FileStore) ReadAnimeData(_ context.Context) (scraper.AnimeDataDocument, error) {
	doc := scraper.AnimeDataDocument{
		Anime:          []scraper.AnimeListEntry{},
		Episodes:       []scraper.LatestEpisode{},
		LatestEpisodes: []scraper.LatestEpisode{},
	}
	if err := s.readJSON(s.cfg.AnimeDataFile, &doc); err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read %s: %w", s.cfg.AnimeDataFile, err)
	}
	return doc, nil
}

// WriteAnimeData replaces anime-data.json.
func (s *FileStore) WriteAnimeData(_ context.Context, doc scraper.AnimeDataDocument) error {
	return s.writeJSON(s.cfg.AnimeDataFile, doc)
}

// ReadAnimeList loads anime-list.json. A missing file yields an empty
// document.
func (s *FileStore) ReadAnimeList(_ context.Context) (scraper.AnimeListDocument, error) {
	doc := scraper.AnimeListDocument{AnimeList: []scraper.AnimeListEntry{}}
	if err := s.readJSON(s.cfg.AnimeListFile, &doc); err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read %s: %w", s.cfg.AnimeListFile, err)
	}
	return doc, nil
}

// WriteAnimeList replaces anime-list.json.
func (s *FileStore) WriteAnimeList(_ context.Context, doc scraper.AnimeListDocument) error {
	return s.writeJSON(s.cfg.AnimeListFile, doc)
}

// ReadLatestEpisodes loads latest-episodes.json. A missing file yields an
// empty document.
func (s *FileStore) ReadLatestEpisodes(_ context.Context) (scraper.LatestEpisodesDocument, error) {
	doc := scraper.LatestEpisodesDocument{LatestEpisodes: []scraper.LatestEpisode{}}
	if err := s.readJSON(s.cfg.LatestFile, &doc); err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read %s: %w", s.cfg.LatestFile, err)
	}
	return doc, nil
}

// WriteLatestEpisodes replaces latest-episodes.json.
func (s *FileStore) WriteLatestEpisodes(_ context.Context, doc scraper.LatestEpisodesDocument) error {
	return s.writeJSON(s.cfg.LatestFile, doc)
}

// AnimeListUpdatedAt reports the last write time of anime-list.json from the
// file modification time. The second return is false when the document has
// never been written.
func (s *FileStore) AnimeListUpdatedAt(_ context.Context) (time.Time, bool) {
	info, err := os.Stat(s.path(s.cfg.AnimeListFile))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// ReadSettings loads the runtime settings document, writing and returning
// the defaults when none exists yet.
func (s *FileStore) ReadSettings(_ context.Context) (Settings, error) {
	settings := DefaultSettings()
	if err := s.readJSON(s.cfg.SettingsFile, &settings); err != nil {
		if os.IsNotExist(err) {
			if wErr := s.writeJSON(s.cfg.SettingsFile, settings); wErr != nil {
				return settings, wErr
			}
			return settings, nil
		}
		return settings, fmt.Errorf("read %s: %w", s.cfg.SettingsFile, err)
	}
	return settings, nil
}

// UpdateSettings merges the provided fields over the stored document and
// persists the result. Nil pointers leave the stored value untouched.
func (s *FileStore) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	settings, err := s.ReadSettings(ctx)
	if err != nil {
		return settings, err
	}
	if patch.SourceURL != nil {
		settings.SourceURL = *patch.SourceURL
	}
	if patch.ScrapingInterval != nil {
		settings.ScrapingInterval = *patch.ScrapingInterval
	}
	if patch.AutoScraping != nil {
		settings.AutoScraping = *patch.AutoScraping
	}
	if err := s.writeJSON(s.cfg.SettingsFile, settings); err != nil {
		return settings, err
	}
	return settings, nil
}

// SettingsPatch is a partial settings update; nil fields are not applied.
type SettingsPatch struct {
	SourceURL        *string `json:"sourceUrl"`
	ScrapingInterval *string `json:"scrapingInterval"`
	AutoScraping     *bool   `json:"autoScraping"`
}
