package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/rmsqueue/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Getenv("RMSQUEUE_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("user_id", cfg.User.ID).
		Str("transport", string(cfg.Transport)).
		Str("nats_url", cfg.NATS.URL).
		Dur("study_time", cfg.User.StudyTime).
		Str("port", cfg.Gateway.Port).
		Msg("starting rmsqueue client")

	services, err := setupServices(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	server := setupServer(cfg.Gateway.Port, services.Gateway.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := services.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	if cfg.AutoJoin {
		joinCtx, joinCancel := context.WithTimeout(ctx, cfg.NATS.RequestTimeout)
		if err := services.Client.Join(joinCtx); err != nil {
			log.Error().Err(err).Msg("auto-join failed")
		}
		joinCancel()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Give up our place so the queue does not wait on a client that is gone.
	if services.Client.Enqueued() {
		if err := services.Client.Leave(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to leave queue on shutdown")
		}
	}

	cancel()
	services.Close()

	log.Info().Msg("rmsqueue client shutdown complete")
}
