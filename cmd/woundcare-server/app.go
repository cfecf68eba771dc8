package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/ehr/woundcare/internal/config"
	"github.com/ehr/woundcare/internal/domain/alerting"
	"github.com/ehr/woundcare/internal/domain/episode"
	"github.com/ehr/woundcare/internal/domain/review"
	"github.com/ehr/woundcare/internal/platform/auth"
	"github.com/ehr/woundcare/internal/platform/db"
	"github.com/ehr/woundcare/internal/platform/metrics"
	"github.com/ehr/woundcare/internal/platform/middleware"
)

const version = "0.1.0"

// app holds the wired services shared by the serve and evaluate commands.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	pool     *pgxpool.Pool
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	tracker  *alerting.Tracker
	reviews  *review.Service
	episodes *episode.Service
}

func fatigueConfig(cfg *config.Config) alerting.FatigueConfig {
	fc := alerting.DefaultFatigueConfig()
	fc.DailyCap = cfg.FatigueDailyCap
	fc.WeeklyCap = cfg.FatigueWeeklyCap
	fc.SameTypeLimit = cfg.FatigueSameTypeLimit
	return fc
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger}

	repo := review.NewMemoryRepo()
	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		repo = review.NewRepo(pool)
		logger.Info().Msg("connected to database")
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	fc := fatigueConfig(cfg)
	a.tracker = alerting.NewTracker(fc.HistoryRetention)
	history, err := repo.History(ctx, time.Now().UTC().Add(-fc.HistoryRetention))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load fatigue history: %w", err)
	}
	a.tracker.Restore(history)
	logger.Info().Int("records", len(history)).Msg("fatigue history restored")

	a.reviews = review.NewService(repo, a.tracker, logger)
	a.reviews.SetMetrics(a.metrics)

	a.episodes = episode.NewService(alerting.NewPreventer(fc, a.tracker), a.reviews, logger)
	a.episodes.SetMetrics(a.metrics)
	a.episodes.SetParallelism(cfg.EvalParallelism)
	return a, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) storage() string {
	if a.pool != nil {
		return "postgres"
	}
	return "memory"
}

func (a *app) authMiddleware() echo.MiddlewareFunc {
	if a.cfg.AuthSigningKey == "" {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     a.cfg.AuthIssuer,
		Audience:   a.cfg.AuthAudience,
		SigningKey: []byte(a.cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	})
}

func (a *app) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.log))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.log))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit("2M"))
	e.Use(middleware.RequestTimeout(time.Duration(a.cfg.RequestTimeoutSeconds) * time.Second))
	e.Use(a.metrics.Middleware())
	e.Use(a.authMiddleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(a.registry)))

	apiV1 := e.Group("/api/v1")
	episode.NewHandler(a.episodes).RegisterRoutes(apiV1)
	review.NewHandler(a.reviews).RegisterRoutes(apiV1)
	return e
}
