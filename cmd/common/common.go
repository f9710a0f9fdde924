// Package common holds the bootstrap shared by all subcommands.
package common

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/estatewatch/crawler/internal/config"
	"github.com/estatewatch/crawler/internal/logger"
	"github.com/estatewatch/crawler/internal/storage"
)

// App bundles the long-lived dependencies a subcommand needs.
type App struct {
	Cfg   *config.Config
	Log   logger.Interface
	Store storage.Store
}

// Bootstrap loads configuration, builds the logger, and opens storage.
func Bootstrap() (*App, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	store, err := storage.New(cfg.Storage, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return &App{Cfg: cfg, Log: log, Store: store}, nil
}

// Close releases the bootstrap resources.
func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		a.Log.Error("closing storage", logger.Error(err))
	}
	_ = a.Log.Sync()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
