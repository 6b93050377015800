package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/asreported/internal/jobs"
)

// CacheBumper invalidates cached consolidation results.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// CacheBumpJob drops every cached run, typically on a schedule.
type CacheBumpJob struct {
	Cache   CacheBumper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle bumps the cache version.
func (j *CacheBumpJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("cache bump: cache not configured")
	}
	tracker := j.metrics().Track(TaskCacheBump)
	err := j.Cache.Bump(ctx)
	if err != nil {
		j.log().Error("bump cache version", slog.Any("error", err))
	} else {
		j.log().Info("consolidation cache invalidated")
	}
	return tracker.End(err)
}

func (j *CacheBumpJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CacheBumpJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCacheBump))
	}
	return slog.Default().With(slog.String("job", TaskCacheBump))
}
