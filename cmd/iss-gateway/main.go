// Command iss-gateway exposes the MOEX ISS client over HTTP: instrument
// selection as JSON and history streaming as CSV, plus health and metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/moex-iss-client/internal/config"
	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "config file (yaml, toml or json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := logging.Setup(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	iss, closeClient, err := cfg.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create ISS client")
	}
	defer closeClient()

	gin.SetMode(gin.ReleaseMode)
	handler := NewHandler(iss, cfg.Gateway, logger.With().Str("component", "iss-gateway").Logger())

	srv := &http.Server{
		Addr:              cfg.Gateway.Listen,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", cfg.Gateway.Listen).
		Str("iss", cfg.ISS.BaseURL).
		Bool("passport", cfg.Passport.User != "").
		Msg("Starting ISS gateway")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}
