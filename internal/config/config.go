package config

import (
	"fmt"
	"log/slog"
	"nowcast-pipeline/internal/core/types"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	LocalStorage = "local"
	S3Storage    = "s3"
)

type Config struct {
	RegistryPath string `env:"REGISTRY_PATH" envDefault:"registry.yaml"`
	Workers      int    `env:"WORKERS" envDefault:"1"`

	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"5m"`
	EngineTimeout time.Duration `env:"ENGINE_TIMEOUT" envDefault:"6h"`

	// Case tables come from the acquisition service unless a bucket is set.
	AcquisitionURL    string `env:"ACQUISITION_URL"`
	AcquisitionBucket string `env:"ACQUISITION_BUCKET"`
	SnapshotBucket    string `env:"SNAPSHOT_BUCKET"`

	StorageBackend    string `env:"STORAGE_BACKEND" envDefault:"local"`
	StorageDir        string `env:"STORAGE_DIR" envDefault:"./nowcast-data"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`

	ResourceBucket        string `env:"RESOURCE_BUCKET" envDefault:"nowcast-resources"`
	DefaultGenerationTime string `env:"DEFAULT_GENERATION_TIME" envDefault:"generation_time"`

	EnginePlugin string `env:"ENGINE_PLUGIN" envDefault:"nowcast-engine"`

	// Empty disables run history.
	DatabaseURL string `env:"DATABASE_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// EngineHostConfig configures the engine host process started by the pipeline.
type EngineHostConfig struct {
	Rscript  string `env:"RSCRIPT" envDefault:"Rscript"`
	Script   string `env:"ENGINE_SCRIPT,required,notEmpty"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Parse reads the environment without validating it, so callers can apply
// overrides first.
func Parse() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", types.ErrConfiguration, err)
	}
	return cfg, nil
}

func LoadEngineHost() (EngineHostConfig, error) {
	cfg, err := env.ParseAs[EngineHostConfig]()
	if err != nil {
		return EngineHostConfig{}, fmt.Errorf("%w: %w", types.ErrConfiguration, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.RegistryPath == "" {
		return fmt.Errorf("%w: REGISTRY_PATH must be set", types.ErrConfiguration)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: WORKERS must be at least 1, got %d", types.ErrConfiguration, c.Workers)
	}
	if c.FetchTimeout < 0 || c.EngineTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", types.ErrConfiguration)
	}
	if c.AcquisitionURL == "" && c.AcquisitionBucket == "" {
		return fmt.Errorf("%w: one of ACQUISITION_URL or ACQUISITION_BUCKET must be set", types.ErrConfiguration)
	}
	switch c.StorageBackend {
	case LocalStorage, S3Storage:
	default:
		return fmt.Errorf("%w: invalid STORAGE_BACKEND '%s'", types.ErrConfiguration, c.StorageBackend)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return 0, fmt.Errorf("%w: invalid LOG_LEVEL '%s'", types.ErrConfiguration, level)
	}
	return l, nil
}
