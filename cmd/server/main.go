package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forge-logd/internal/api"
	"forge-logd/internal/config"
	"forge-logd/internal/monitor"
	"forge-logd/internal/secrets"
	"forge-logd/internal/storage"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resolve database credentials: explicit DSN for local development,
	// Secret Manager + Cloud SQL socket otherwise. Secrets are fetched
	// once at startup.
	dsn := cfg.Database.DSN
	if dsn == "" {
		sm, err := secrets.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create secret manager client")
		}

		user, err := sm.Access(ctx, cfg.Secrets.Project, cfg.Secrets.UserSecret, cfg.Secrets.Version)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to fetch database user secret")
		}
		pass, err := sm.Access(ctx, cfg.Secrets.Project, cfg.Secrets.PassSecret, cfg.Secrets.Version)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to fetch database password secret")
		}
		if err := sm.Close(); err != nil {
			log.Warn().Err(err).Msg("secret manager client close error")
		}

		dsn = secrets.DSN(user, pass, cfg.Database.Name,
			cfg.Database.SocketDir, cfg.Database.InstanceConnectionName)
	}

	// The service is a write-through to Postgres; without it there is
	// nothing to serve.
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("schema migration failed")
		}
	}

	// Initialize metrics
	metrics := monitor.NewMetrics()

	// Create and start HTTP server
	server := api.NewServer(cfg, db, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("migrate", cfg.Database.Migrate).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
