package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fit-atlas/internal/config"
	"fit-atlas/internal/interfaces/router"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	srv, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Verify connections before serving
	if srv.DB != nil {
		sqlDB, err := srv.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Postgres connection failed")
		}
		log.Info().Msg("Postgres connected")
	}
	if srv.Redis != nil {
		if err := srv.Redis.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		log.Info().Msg("Redis connected")
	}

	if _, err := srv.Refresher.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("Initial catalogue load failed; queries answer 503 until a refresh succeeds")
	}
	go srv.Refresher.Run(ctx)

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		if err := srv.App.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Msgf("Server running at http://localhost:%s", cfg.Port)
	log.Info().Msgf("Health check: http://localhost:%s/health/json", cfg.Port)
	if err := srv.App.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
	if srv.Redis != nil {
		_ = srv.Redis.Close()
	}
}
