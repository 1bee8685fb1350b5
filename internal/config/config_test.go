package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8111", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "file", cfg.Models.Backend)
	assert.Equal(t, 0.95, cfg.Forecast.Confidence)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)

	p := cfg.Predictor()
	assert.Equal(t, 100, p.Estimators)
	assert.Equal(t, int64(42), p.Seed)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("MODEL_ESTIMATORS", "25")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("SKIP_AUTH", "true")
	t.Setenv("FORECAST_CONFIDENCE", "0.8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 25, cfg.Models.Estimators)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.True(t, cfg.Auth.SkipAuth)
	assert.Equal(t, 0.8, cfg.Forecast.Confidence)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FORECAST_HORIZON=12\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FORECAST_HORIZON") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Forecast.Horizon)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:    StoreConfig{Backend: "memory"},
			Models:   ModelsConfig{Backend: "file", Estimators: 10, MaxDepth: 5},
			Forecast: ForecastConfig{Confidence: 0.9, Horizon: 6, OverspendThreshold: 1.2, SafetyMargin: 0.1},
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Config){
		"store backend":   func(c *Config) { c.Store.Backend = "redis" },
		"gcs bucket":      func(c *Config) { c.Models.Backend = "gcs" },
		"confidence":      func(c *Config) { c.Forecast.Confidence = 1 },
		"horizon":         func(c *Config) { c.Forecast.Horizon = 25 },
		"estimators":      func(c *Config) { c.Models.Estimators = 0 },
		"safety margin":   func(c *Config) { c.Forecast.SafetyMargin = 1 },
		"overspend ratio": func(c *Config) { c.Forecast.OverspendThreshold = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
