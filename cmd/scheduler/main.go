package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/linkflow-ai/flowmirror/internal/app"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
	"github.com/linkflow-ai/flowmirror/internal/pkg/logger"
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
		Str("service", "scheduler").
		Msg("Starting scheduler service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Migrate: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	if a.Redis == nil {
		log.Warn().Msg("Redis disabled, running without leader election; start only one scheduler")
	}

	a.EnsureDefaultProvider(ctx)

	s := a.NewScheduler()
	if err := s.Start(0); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	if err := s.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping scheduler")
	}

	log.Info().Msg("Scheduler stopped")
}
