// Package app builds the service graph shared by the binaries from a
// Config: record store, model store, cache and insight service.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/castlemilk/pfinance/analytics/internal/cache"
	"github.com/castlemilk/pfinance/analytics/internal/config"
	"github.com/castlemilk/pfinance/analytics/internal/modelstore"
	"github.com/castlemilk/pfinance/analytics/internal/service"
	"github.com/castlemilk/pfinance/analytics/internal/store"
)

// App holds the constructed dependencies. Close releases them.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   store.Store
	Models  modelstore.BlobStore
	Cache   cache.Cache
	Service *service.InsightService

	closers []func()
}

// New connects every backend named by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if a.Store, err = a.openStore(ctx); err != nil {
		return nil, err
	}
	if a.Models, err = a.openModels(ctx); err != nil {
		return nil, err
	}

	c, err := cache.NewRistretto(cfg.Cache.MaxCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	a.Cache = c
	a.closers = append(a.closers, c.Close)

	a.Service = service.NewInsightService(a.Store, a.Models, a.Cache, logger, Options(cfg))
	ok = true
	return a, nil
}

// Options maps configuration onto service options.
func Options(cfg *config.Config) service.Options {
	opts := service.DefaultOptions()
	opts.Predictor = cfg.Predictor()
	opts.Confidence = cfg.Forecast.Confidence
	opts.Horizon = cfg.Forecast.Horizon
	opts.OverspendThreshold = cfg.Forecast.OverspendThreshold
	opts.SafetyMargin = cfg.Forecast.SafetyMargin
	opts.CacheTTL = cfg.Cache.TTL
	return opts
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	switch cfg := a.Config.Store; cfg.Backend {
	case "memory":
		a.Logger.Info("Using in-memory store")
		return store.NewMemoryStore(), nil
	case "firestore":
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore client: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		a.Logger.Info("Using Firestore store", zap.String("project", cfg.ProjectID))
		return store.NewFirestoreStore(client), nil
	case "postgres":
		pool, err := store.NewPool(ctx, cfg.PostgresDSN, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		s := store.NewPostgresStore(pool, a.Logger)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func (a *App) openModels(ctx context.Context) (modelstore.BlobStore, error) {
	switch cfg := a.Config.Models; cfg.Backend {
	case "file":
		fs, err := modelstore.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		a.Logger.Info("Storing models on disk", zap.String("dir", cfg.Dir))
		return fs, nil
	case "gcs":
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		a.Logger.Info("Storing models in GCS", zap.String("bucket", cfg.Bucket))
		return modelstore.NewGCSStore(client.Bucket(cfg.Bucket)), nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
}

// Close releases backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
