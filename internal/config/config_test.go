package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgitmiko/gitanime-backend/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "https://v1.samehadaku.how/", cfg.Source.BaseURL)
	assert.Equal(t, "0 0 * * *", cfg.Scraper.Schedule)
	assert.True(t, cfg.Scraper.AutoScrape)
	assert.Equal(t, 3, cfg.Scraper.VideoAjaxRetries)
	assert.Equal(t, "./data", cfg.Data.Dir)
	assert.Equal(t, "anime-data.json", cfg.Data.AnimeDataFile)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
source:
  base_url: https://example.com
scraper:
  schedule: "0 6 * * *"
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://example.com", cfg.Source.BaseURL)
	assert.Equal(t, "0 6 * * *", cfg.Scraper.Schedule)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30, cfg.Scraper.TimeoutSeconds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid, err := config.Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"ZeroPort", func(c *config.Config) { c.Server.Port = 0 }},
		{"EmptyBaseURL", func(c *config.Config) { c.Source.BaseURL = "" }},
		{"RelativeBaseURL", func(c *config.Config) { c.Source.BaseURL = "v1.samehadaku.how" }},
		{"ZeroTimeout", func(c *config.Config) { c.Scraper.TimeoutSeconds = 0 }},
		{"ZeroMaxPages", func(c *config.Config) { c.Scraper.MaxPages = 0 }},
		{"EmptyDataDir", func(c *config.Config) { c.Data.Dir = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, valid.Validate())
}

func TestDerivedValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://v1.samehadaku.how/", cfg.BaseURL())
	cfg.Source.BaseURL = "https://example.com"
	assert.Equal(t, "https://example.com/", cfg.BaseURL())

	assert.Equal(t, 30*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 45*time.Second, cfg.AjaxTimeout())
	cfg.Scraper.AjaxTimeoutSec = 0
	assert.Equal(t, cfg.FetchTimeout(), cfg.AjaxTimeout())

	assert.Equal(t, time.Second, cfg.PageDelay())
	assert.Equal(t, 24*time.Hour, cfg.StaleAfter())
	cfg.Data.StaleAfterHours = 6
	assert.Equal(t, 6*time.Hour, cfg.StaleAfter())
	cfg.Data.StaleAfterHours = -1
	assert.Equal(t, 24*time.Hour, cfg.StaleAfter())
}
