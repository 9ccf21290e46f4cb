package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/passkeyhq/passkey-backend/internal/api"
	"github.com/passkeyhq/passkey-backend/internal/backend"
	"github.com/passkeyhq/passkey-backend/internal/service"
	"github.com/passkeyhq/passkey-backend/pkg/config"
	"github.com/passkeyhq/passkey-backend/pkg/logging"
)

func main() {
	configFile := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := backend.NewStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer func() { _ = store.Close() }()

	challengeCache, err := backend.NewChallengeCache(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create challenge cache: %w", err)
	}
	defer func() { _ = challengeCache.Close() }()

	tokens := service.NewTokenService(&cfg.JWT)
	webauthnService, err := service.NewWebAuthnService(store, challengeCache, tokens, &cfg.WebAuthn, logger)
	if err != nil {
		return fmt.Errorf("failed to create webauthn service: %w", err)
	}

	if cfg.Logging.Format == "json" {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers := api.NewHandlers(webauthnService, store, logger)
	router := api.Router(handlers, tokens, cfg, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", cfg.Server.Address()),
			zap.String("rp_id", cfg.WebAuthn.RPID),
			zap.String("rp_origin", cfg.WebAuthn.RPOrigin))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
