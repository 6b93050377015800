package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/asreported/internal/consol"
	"github.com/odyssey-erp/asreported/internal/platform/cache"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"60s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// PGDSN enables run history when set.
	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"4"`

	// RedisAddr enables the result cache and the job queue when set.
	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	RedisPassword     string        `envconfig:"REDIS_PASSWORD"`
	RedisDB           int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL          time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	CacheBumpCron     string        `envconfig:"CACHE_BUMP_CRON"`
	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"4"`

	UploadMaxBytes int64 `envconfig:"UPLOAD_MAX_BYTES" default:"33554432"`

	ConsolIrreconcilable  bool `envconfig:"CONSOL_IRRECONCILABLE" default:"false"`
	ConsolSearchWarnItems int  `envconfig:"CONSOL_SEARCH_WARN_ITEMS" default:"20"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.UploadMaxBytes <= 0 {
		return nil, errors.New("upload max bytes must be positive")
	}
	if cfg.ConsolSearchWarnItems <= 0 {
		return nil, errors.New("consol search warn items must be positive")
	}
	if cfg.WorkerConcurrency <= 0 {
		return nil, errors.New("worker concurrency must be positive")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// RedisOptions returns the shared Redis connection settings.
func (c *Config) RedisOptions() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// EngineConfig returns the consolidation engine defaults.
func (c *Config) EngineConfig() consol.Config {
	if c == nil {
		return consol.Config{}
	}
	return consol.Config{
		Irreconcilable:  c.ConsolIrreconcilable,
		SearchWarnItems: c.ConsolSearchWarnItems,
	}
}
