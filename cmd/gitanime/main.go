// Package main wires together the GitAnime backend service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gitgitmiko/gitanime-backend/internal/api"
	"github.com/gitgitmiko/gitanime-backend/internal/config"
	"github.com/gitgitmiko/gitanime-backend/internal/logging"
	"github.com/gitgitmiko/gitanime-backend/internal/sched"
	"github.com/gitgitmiko/gitanime-backend/internal/scraper"
	"github.com/gitgitmiko/gitanime-backend/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fileStore, err := store.New(store.Config{
		BaseDir:       cfg.Data.Dir,
		AnimeDataFile: cfg.Data.AnimeDataFile,
		AnimeListFile: cfg.Data.AnimeListFile,
		LatestFile:    cfg.Data.LatestFile,
		SettingsFile:  cfg.Data.ConfigFile,
	}, logger.Named("store"))
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}

	overrides, err := scraper.LoadImageTable(filepath.Join(cfg.Data.Dir, cfg.Data.ImageTableFile))
	if err != nil {
		logger.Warn("image table load failed, using built-in table", zap.Error(err))
	}
	images := scraper.NewImageResolver(overrides)
	jikan := scraper.NewJikanResolver(images, logger.Named("jikan"))

	fetcher := scraper.NewCollyFetcher(scraper.FetcherConfig{
		UserAgent:      cfg.Scraper.UserAgent,
		DefaultTimeout: cfg.FetchTimeout(),
	})

	limiter := rate.NewLimiter(rate.Every(cfg.PageDelay()), 1)
	walker := scraper.NewWalker(fetcher, cfg.BaseURL(), limiter, cfg.Scraper.MaxPages, logger.Named("walker"))

	locator := scraper.NewVideoLocator(fetcher, cfg.BaseURL(), scraper.VideoConfig{
		PageTimeout: cfg.FetchTimeout(),
		AjaxTimeout: cfg.AjaxTimeout(),
		AjaxRetries: cfg.Scraper.VideoAjaxRetries,
		RetryDelay:  time.Duration(cfg.Scraper.VideoRetryDelay) * time.Millisecond,
	}, logger.Named("video"))

	session := scraper.NewSession(
		fetcher,
		walker,
		images,
		locator,
		fileStore,
		cfg.BaseURL(),
		scraper.SessionConfig{DetailDelay: cfg.DetailDelay()},
		logger.Named("scraper"),
	)
	session.UseJikan(jikan)

	scheduler, err := sched.New(cfg.Scraper.Schedule, session, logger.Named("sched"))
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}

	apiServer := api.NewServer(fileStore, session, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.Scraper.AutoScrape {
		scheduler.Start()
		go func() {
			if err := session.RunFullScrape(ctx); err != nil &&
				!errors.Is(err, scraper.ErrScrapeInProgress) {
				logger.Error("initial scrape failed", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if cfg.Scraper.AutoScrape {
		scheduler.Stop()
	}
	logger.Info("shutdown complete")
}
