// Package app wires repositories, caches, the reasoning client, and the
// answer pipeline from the provided dependencies.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"datachat/internal/backend"
	"datachat/internal/config"
	"datachat/internal/db/repository"
	"datachat/internal/domain"
	"datachat/internal/plancache"
	"datachat/internal/reasoning"
	"datachat/internal/service/answer"
	"datachat/internal/service/plan"
	"datachat/internal/service/planner"
)

// Deps holds the external dependencies that main() must provide: database
// handles, config, and the logger. The warehouse pool is optional when only
// the embedded dialect is used.
type Deps struct {
	Cfg       *config.Config
	WriteDB   *sql.DB // metadata database, single-writer pool
	ReadDB    *sql.DB // metadata database, read pool
	Warehouse *sql.DB // Oracle warehouse pool, may be nil
	Logger    *slog.Logger
}

// Services groups the wired services the CLI needs.
type Services struct {
	Answer    *answer.Controller
	Generator *planner.Generator
	Validator *plan.Validator
	Cache     *plancache.Cache
}

// App is the fully-wired application.
type App struct {
	Services Services

	Catalog      *repository.CatalogRepo
	TrainedPlans *repository.TrainedPlanRepo
	Exemplars    *repository.ExemplarRepo

	cron   *cron.Cron
	logger *slog.Logger
}

// New wires the application. It does not start background refresh; call
// StartScheduler for long-running sessions.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalogRepo := repository.NewCatalogRepo(deps.ReadDB, deps.WriteDB)
	trainedRepo := repository.NewTrainedPlanRepo(deps.ReadDB, deps.WriteDB)
	exemplarRepo := repository.NewExemplarRepo(deps.ReadDB, deps.WriteDB)

	cache := plancache.New(trainedRepo, plancache.Options{
		TTL:              cfg.Cache.TTL,
		MaxEntries:       cfg.Cache.MaxEntries,
		AcceptThreshold:  cfg.Similarity.Accept,
		RelaxedThreshold: cfg.Similarity.Relaxed,
		ShortRunes:       cfg.Similarity.ShortRunes,
		DomainKeywords:   cfg.DomainKeywords,
	}, logger.With("component", "plancache"))

	completer := reasoning.NewClient(cfg.Reasoning, logger.With("component", "reasoning"))

	generator := planner.NewGenerator(cache, completer, exemplarRepo, planner.Options{
		MinConfidence:      cfg.Similarity.MinConfidence,
		BroadenFreshBudget: cfg.BroadenFreshBudget,
	}, logger.With("component", "planner"))

	validator := plan.NewValidator(cfg.DefaultLimit, cfg.MaxLimit)

	var oracleBackend domain.ExecutionBackend
	if deps.Warehouse != nil {
		oracleBackend = backend.NewOracleBackend(deps.Warehouse)
	}
	// The metadata read pool doubles as the embedded warehouse dialect.
	router := backend.NewRouter(oracleBackend, backend.NewSQLiteBackend(deps.ReadDB))

	controller := answer.NewController(generator, validator, catalogRepo, router, cache,
		logger.With("component", "answer"))

	a := &App{
		Services: Services{
			Answer:    controller,
			Generator: generator,
			Validator: validator,
			Cache:     cache,
		},
		Catalog:      catalogRepo,
		TrainedPlans: trainedRepo,
		Exemplars:    exemplarRepo,
		logger:       logger,
	}

	// Warm the cache so the first question doesn't pay the load.
	if err := cache.Refresh(ctx); err != nil {
		logger.Warn("initial plan cache load failed", "error", err)
	}

	return a, nil
}

// StartScheduler begins periodic plan-cache refresh for long-running chat
// sessions. Interactive one-shot commands can skip it; the cache refreshes
// lazily on its TTL anyway.
func (a *App) StartScheduler() error {
	if a.cron != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc("@every 2m", func() {
		if err := a.Services.Cache.Refresh(context.Background()); err != nil {
			a.logger.Warn("scheduled plan cache refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache refresh: %w", err)
	}
	c.Start()
	a.cron = c
	return nil
}

// Close stops background work.
func (a *App) Close() {
	if a.cron != nil {
		a.cron.Stop()
	}
}
