// Package main is the entry point for the points bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-points-bot/internal/bot"
	"telegram-points-bot/internal/config"
	"telegram-points-bot/internal/jobs"
	"telegram-points-bot/internal/ratelimit"
	"telegram-points-bot/internal/repository"
	"telegram-points-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Log)

	log.Info().
		Str("driver", cfg.Store.ResolvedDriver()).
		Str("scope", cfg.Scores.Scope).
		Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the score store
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Store.ConnectTimeout+5*time.Second)
	store, err := repository.Open(connectCtx, &cfg.Store)
	connectCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to store")
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := store.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run store migrations")
	}

	// Initialize services
	scores := service.NewScoreService(store, service.OptionsFromConfig(cfg))

	// Initialize rate limiter
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(ctx, &cfg.RateLimit)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create rate limiter")
		}
		defer limiter.Close()
	}

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:  cfg,
		Scores:  scores,
		Limiter: limiter,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Start background jobs
	var pruner jobs.Pruner
	if limiter != nil {
		pruner = limiter
	}
	scheduler := jobs.NewScheduler(cfg.Jobs, store, pruner)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job scheduler")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	cancel()
	scheduler.Stop()
	log.Info().Bool("store_healthy", scheduler.Healthy()).Msg("Bot stopped gracefully")
}

// setupLogging applies the configured level and output format.
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
