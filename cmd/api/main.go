package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/linkflow-ai/flowmirror/internal/api"
	"github.com/linkflow-ai/flowmirror/internal/app"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
	"github.com/linkflow-ai/flowmirror/internal/pkg/logger"
	"github.com/linkflow-ai/flowmirror/internal/scheduler"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	logger.Init(cfg.App.Environment, cfg.App.Debug)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Msg("Starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Migrate: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	a.EnsureDefaultProvider(ctx)

	// The scheduler always exists so it can be started over the API.
	sched := a.NewScheduler()
	if cfg.Sync.AutoStart {
		if err := sched.Start(0); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	server := api.NewServer(cfg, &api.Dependencies{
		DB:         a.DB,
		Redis:      a.Redis,
		Upstream:   a.HTTP,
		Engine:     a.Engine,
		Scheduler:  sched,
		JWTManager: a.JWTManager(),
		Services:   a.Services,
	})

	if err := server.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
	}

	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		log.Error().Err(err).Msg("Error stopping scheduler")
	}
	log.Info().Msg("API server stopped")
}
