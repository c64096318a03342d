package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	"go.uber.org/zap"

	"f2_scrooper/config"
	"f2_scrooper/models"
	"f2_scrooper/scheduler"
)

// Triggerer runs cycles on demand. *scheduler.Scheduler satisfies it.
type Triggerer interface {
	Trigger(ctx context.Context, kind models.DataKind) (*models.CycleReport, error)
	State() scheduler.Status
}

// StatsStore exposes per-kind health. Optional.
type StatsStore interface {
	GetKindStats() ([]models.KindStats, error)
}

type Server struct {
	cfg        config.ServerConfig
	production bool
	trigger    Triggerer
	stats      StatsStore
	log        *zap.Logger
}

func New(cfg config.ServerConfig, production bool, trigger Triggerer, stats StatsStore, log *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		production: production,
		trigger:    trigger,
		stats:      stats,
		log:        log.Named("http"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	c := corslib.New(corslib.Options{
		AllowedOrigins:   s.cfg.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.status)

		r.Group(func(r chi.Router) {
			if s.cfg.RequestsPerMin > 0 {
				r.Use(rateLimit(s.cfg.RequestsPerMin))
			}
			r.Use(requireSecret(s.cfg.SecretToken, s.production, s.log))

			r.Get("/cron", s.cron)
			r.Post("/cron", s.cron)
			r.Post("/scrape/{kind}", s.scrapeKind)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
