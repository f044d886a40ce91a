package config_test

import (
	"log/slog"
	"nowcast-pipeline/internal/config"
	"nowcast-pipeline/internal/core/types"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load() (config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACQUISITION_URL", "http://localhost:8080/cases")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, "registry.yaml", cfg.RegistryPath)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 5*time.Minute, cfg.FetchTimeout)
	assert.Equal(t, 6*time.Hour, cfg.EngineTimeout)
	assert.Equal(t, config.LocalStorage, cfg.StorageBackend)
	assert.Equal(t, "generation_time", cfg.DefaultGenerationTime)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ACQUISITION_BUCKET", "cases")
	t.Setenv("WORKERS", "4")
	t.Setenv("FETCH_TIMEOUT", "30s")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_ENDPOINT_URL", "http://localhost:9000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, config.S3Storage, cfg.StorageBackend)
	assert.Equal(t, "http://localhost:9000", cfg.S3EndpointURL)

	level, err := config.ParseLogLevel(cfg.LogLevel)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "no acquisition", env: map[string]string{}},
		{name: "zero workers", env: map[string]string{"ACQUISITION_URL": "http://x", "WORKERS": "0"}},
		{name: "malformed workers", env: map[string]string{"ACQUISITION_URL": "http://x", "WORKERS": "many"}},
		{name: "negative timeout", env: map[string]string{"ACQUISITION_URL": "http://x", "ENGINE_TIMEOUT": "-1s"}},
		{name: "storage backend", env: map[string]string{"ACQUISITION_URL": "http://x", "STORAGE_BACKEND": "gcs"}},
		{name: "log level", env: map[string]string{"ACQUISITION_URL": "http://x", "LOG_LEVEL": "loud"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ACQUISITION_URL", "")
			t.Setenv("ACQUISITION_BUCKET", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := load()
			assert.ErrorIs(t, err, types.ErrConfiguration)
		})
	}
}

func TestLoadEngineHost(t *testing.T) {
	t.Setenv("ENGINE_SCRIPT", "")
	_, err := config.LoadEngineHost()
	assert.ErrorIs(t, err, types.ErrConfiguration)

	t.Setenv("ENGINE_SCRIPT", "/opt/nowcast/estimate.R")
	cfg, err := config.LoadEngineHost()
	require.NoError(t, err)
	assert.Equal(t, "Rscript", cfg.Rscript)
	assert.Equal(t, "/opt/nowcast/estimate.R", cfg.Script)
}
