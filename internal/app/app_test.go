package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/analytics/internal/config"
	"github.com/castlemilk/pfinance/analytics/internal/logger"
	"github.com/castlemilk/pfinance/analytics/internal/modelstore"
	"github.com/castlemilk/pfinance/analytics/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Store:  config.StoreConfig{Backend: "memory"},
		Models: config.ModelsConfig{Backend: "file", Dir: filepath.Join(t.TempDir(), "models"), Estimators: 10, MaxDepth: 4, Seed: 7},
		Cache:  config.CacheConfig{TTL: time.Minute, MaxCost: 1 << 20},
		Forecast: config.ForecastConfig{
			Confidence:         0.9,
			Horizon:            3,
			OverspendThreshold: 1.5,
			SafetyMargin:       0.2,
		},
	}
}

func TestNew_MemoryAndFile(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &store.MemoryStore{}, a.Store)
	assert.IsType(t, &modelstore.FileStore{}, a.Models)
	assert.NotNil(t, a.Cache)
	assert.NotNil(t, a.Service)

	a.Close()
	a.Close()
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "sqlite"
	_, err := New(context.Background(), cfg, logger.Nop())
	assert.ErrorContains(t, err, "unknown store backend")

	cfg = testConfig(t)
	cfg.Models.Backend = "s3"
	_, err = New(context.Background(), cfg, logger.Nop())
	assert.ErrorContains(t, err, "unknown model backend")
}

func TestOptions(t *testing.T) {
	opts := Options(testConfig(t))
	assert.Equal(t, 0.9, opts.Confidence)
	assert.Equal(t, 3, opts.Horizon)
	assert.Equal(t, 1.5, opts.OverspendThreshold)
	assert.Equal(t, 0.2, opts.SafetyMargin)
	assert.Equal(t, time.Minute, opts.CacheTTL)
	assert.Equal(t, 10, opts.Predictor.Estimators)
	assert.Equal(t, 4, opts.Predictor.MaxDepth)
	assert.EqualValues(t, 7, opts.Predictor.Seed)
}
