// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Source  SourceConfig  `mapstructure:"source"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Data    DataConfig    `mapstructure:"data"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds the admin password guarding scrape triggers.
type AuthConfig struct {
	AdminPassword string `mapstructure:"admin_password"`
}

// SourceConfig identifies the upstream site being scraped.
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// ScraperConfig governs fetch timeouts, politeness delays and scheduling.
type ScraperConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	AjaxTimeoutSec   int    `mapstructure:"ajax_timeout_seconds"`
	PageDelayMs      int    `mapstructure:"page_delay_ms"`
	DetailDelayMs    int    `mapstructure:"detail_delay_ms"`
	MaxPages         int    `mapstructure:"max_pages"`
	Schedule         string `mapstructure:"schedule"`
	AutoScrape       bool   `mapstructure:"auto_scrape"`
	VideoAjaxRetries int    `mapstructure:"video_ajax_retries"`
	VideoRetryDelay  int    `mapstructure:"video_retry_delay_ms"`
}

// DataConfig sets the document store location and file names.
type DataConfig struct {
	Dir             string `mapstructure:"dir"`
	AnimeDataFile   string `mapstructure:"anime_data_file"`
	AnimeListFile   string `mapstructure:"anime_list_file"`
	LatestFile      string `mapstructure:"latest_file"`
	ImageTableFile  string `mapstructure:"image_table_file"`
	ConfigFile      string `mapstructure:"config_file"`
	StaleAfterHours int    `mapstructure:"stale_after_hours"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GITANIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("source.base_url", "https://v1.samehadaku.how/")
	v.SetDefault("scraper.user_agent", defaultUserAgent)
	v.SetDefault("scraper.timeout_seconds", 30)
	v.SetDefault("scraper.ajax_timeout_seconds", 45)
	v.SetDefault("scraper.page_delay_ms", 1000)
	v.SetDefault("scraper.detail_delay_ms", 1000)
	v.SetDefault("scraper.max_pages", 50)
	v.SetDefault("scraper.schedule", "0 0 * * *")
	v.SetDefault("scraper.auto_scrape", true)
	v.SetDefault("scraper.video_ajax_retries", 3)
	v.SetDefault("scraper.video_retry_delay_ms", 1000)
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.anime_data_file", "anime-data.json")
	v.SetDefault("data.anime_list_file", "anime-list.json")
	v.SetDefault("data.latest_file", "latest-episodes.json")
	v.SetDefault("data.image_table_file", "anime-images.json")
	v.SetDefault("data.config_file", "config.json")
	v.SetDefault("data.stale_after_hours", 24)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if !strings.HasPrefix(c.Source.BaseURL, "http") {
		return fmt.Errorf("source.base_url must be an absolute http(s) URL")
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	if c.Scraper.MaxPages <= 0 {
		return fmt.Errorf("scraper.max_pages must be > 0")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must be set")
	}
	return nil
}

// BaseURL returns the source base URL with a guaranteed trailing slash.
func (c Config) BaseURL() string {
	if strings.HasSuffix(c.Source.BaseURL, "/") {
		return c.Source.BaseURL
	}
	return c.Source.BaseURL + "/"
}

// FetchTimeout converts the page timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}

// AjaxTimeout converts the player-endpoint timeout into a duration.
func (c Config) AjaxTimeout() time.Duration {
	if c.Scraper.AjaxTimeoutSec <= 0 {
		return c.FetchTimeout()
	}
	return time.Duration(c.Scraper.AjaxTimeoutSec) * time.Second
}

// PageDelay is the mandatory politeness delay between page fetches.
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.Scraper.PageDelayMs) * time.Millisecond
}

// DetailDelay is the delay between per-anime detail fetches in a full pass.
func (c Config) DetailDelay() time.Duration {
	return time.Duration(c.Scraper.DetailDelayMs) * time.Millisecond
}

// StaleAfter is the age past which the catalog document triggers a rescrape.
func (c Config) StaleAfter() time.Duration {
	if c.Data.StaleAfterHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Data.StaleAfterHours) * time.Hour
}
