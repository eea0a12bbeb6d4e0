package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/ibimetrics/internal/log"
	"github.com/chrissnell/ibimetrics/internal/server"
	"github.com/chrissnell/ibimetrics/internal/store"
	"github.com/chrissnell/ibimetrics/pkg/config"
	"go.uber.org/zap"
)

// App represents the long-running API service
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:    cfg,
		logger: log.OrNop(logger),
	}
}

// Run opens the recording store, starts the REST server and blocks until
// shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := store.Open(ctx, a.cfg.Storage.Driver, a.cfg.Storage.DSN, a.logger.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to open recording store: %w", err)
	}
	defer st.Close()

	srv := server.New(a.cfg, st, a.logger.Named("server"))
	srv.Start(ctx, &wg)

	a.logger.Info("Application started successfully")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	cancel()

	a.logger.Info("waiting for the server to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}
