package main

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"f2_scrooper/browser"
	"f2_scrooper/config"
	"f2_scrooper/logging"
	"f2_scrooper/scraper"
	"f2_scrooper/storage"
)

// app holds the wiring shared by the daemon and the one-shot commands.
type app struct {
	cfg          *config.Config
	log          *zap.Logger
	sqlite       *storage.SQLiteStore
	postgres     *storage.PostgresMirror
	orchestrator *scraper.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.Setup(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}
	log.Info("starting f2_scrooper",
		zap.String("environment", cfg.Environment),
		zap.String("browser_mode", cfg.Browser.Mode),
		zap.String("site", cfg.Site.ID),
		zap.Int("max_seasons", cfg.Scraper.MaxSeasons))

	a := &app{cfg: cfg, log: log}

	a.sqlite, err = openSQLite(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Info("operational store ready", zap.String("path", cfg.Storage.DBPath))

	results, err := storage.NewResultsStore(cfg.Storage.ResultsDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("results dir: %w", err)
	}

	var mirrors []storage.Mirror
	if cfg.Storage.S3.Enabled() {
		m, err := storage.NewS3Mirror(ctx, cfg.Storage.S3)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("s3 mirror: %w", err)
		}
		mirrors = append(mirrors, m)
		log.Info("s3 mirror enabled", zap.String("bucket", cfg.Storage.S3.Bucket))
	}
	if cfg.Storage.DatabaseURL != "" {
		m, err := storage.NewPostgresMirror(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres mirror: %w", err)
		}
		a.postgres = m
		mirrors = append(mirrors, m)
		log.Info("postgres mirror enabled", zap.String("url", maskConnectionString(cfg.Storage.DatabaseURL)))
	}

	a.orchestrator = scraper.NewOrchestrator(scraper.Deps{
		Provider: browser.NewProvider(cfg.Browser, log),
		Scrapers: scraper.NewScrapers(scraper.Options{
			Site:       cfg.Site,
			MaxSeasons: cfg.Scraper.MaxSeasons,
			Log:        log,
		}),
		Results:   results,
		Recorder:  a.sqlite,
		Mirrors:   mirrors,
		KindDelay: cfg.Scraper.KindDelay,
		Log:       log,
	})
	return a, nil
}

func (a *app) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.sqlite != nil {
		a.sqlite.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func openSQLite(cfg *config.Config) (*storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return store, nil
}

// maskConnectionString hides the password in a database URL.
func maskConnectionString(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
