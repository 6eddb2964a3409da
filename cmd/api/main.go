// cmd/api/main.go
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

	"github.com/briangreenhill/buddy/internal/config"
	"github.com/briangreenhill/buddy/internal/http/routes"
	"github.com/briangreenhill/buddy/internal/storage"
	"github.com/briangreenhill/buddy/internal/workspace"
)

func main() {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "buddy-api").Logger()
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())
	logger.Info().Str("port", cfg.Port).Str("storage", cfg.Storage).Msg("starting api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage shared by every visitor, one namespace each
	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		logger.Fatal().Err(err).Msg("open storage")
	}
	defer func() {
		if err := storage.Close(store); err != nil {
			logger.Error().Err(err).Msg("close storage")
		}
	}()

	reg, err := workspace.NewRegistry(cfg.Workspaces, func(ctx context.Context, visitorID string) (*workspace.Workspace, error) {
		return workspace.Open(ctx, workspace.Options{
			Store:             storage.Namespace(store, "visitor/"+visitorID),
			ClientOptions:     cfg.ClientOptions(),
			SessionOptions:    cfg.SessionOptions(),
			QueryCacheSize:    cfg.QueryCacheSize,
			LocationCacheSize: cfg.LocationCacheSize,
			Logger:            logger.With().Str("visitor", visitorID).Logger(),
		})
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("workspace registry")
	}
	defer reg.Close()

	// Router / server
	s := routes.New(routes.ServerOptions{
		Sess:       routes.NewSessionManager(cfg.SessionCookie, cfg.SecureCookie),
		Workspaces: reg,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("serve")
		return
	}
	logger.Info().Msg("api stopped")
}
