package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/asreported/internal/consol"
	"github.com/odyssey-erp/asreported/internal/consol/xlsx"
	jobmetrics "github.com/odyssey-erp/asreported/internal/jobs"
	"github.com/odyssey-erp/asreported/internal/observability"
	"github.com/odyssey-erp/asreported/internal/platform/cache"
	"github.com/odyssey-erp/asreported/internal/platform/db"
)

// Runtime bundles the infrastructure shared by the api and worker binaries.
// Pool, Redis, Runs and Cache are nil when the matching setting is empty.
type Runtime struct {
	Config     *Config
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	JobMetrics *jobmetrics.Metrics
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Runs       *consol.Repository
	Cache      *consol.ResultCache
	Service    *consol.Service
}

// NewRuntime connects the optional stores and builds the consolidation service.
func NewRuntime(ctx context.Context, cfg *Config, logger *slog.Logger, service string) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(service)
	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics,
		JobMetrics: jobmetrics.NewMetrics(metrics.Registerer()),
	}

	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, err
		}
		rt.Pool = pool
		rt.Runs = consol.NewRepository(pool)
	} else {
		logger.Info("PG_DSN not set, run history disabled")
	}

	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisOptions())
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Redis = client
		rt.Cache = consol.NewResultCache(client, cfg.CacheTTL)
	} else {
		logger.Info("REDIS_ADDR not set, result cache and job queue disabled")
	}

	var store consol.RunStore
	if rt.Runs != nil {
		store = rt.Runs
	}
	rt.Service = consol.NewService(xlsx.Codec{}, store, rt.Cache, cfg.EngineConfig(), logger, consol.NewMetrics(metrics.Registerer()))
	return rt, nil
}

// Dependencies lists the connected stores for readiness checks.
func (rt *Runtime) Dependencies() map[string]Pinger {
	deps := map[string]Pinger{}
	if rt.Pool != nil {
		deps["postgres"] = rt.Pool
	}
	if rt.Redis != nil {
		client := rt.Redis
		deps["redis"] = PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}
	return deps
}

// Close releases the connected stores.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}
