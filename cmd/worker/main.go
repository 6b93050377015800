package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/asreported/internal/app"
	"github.com/odyssey-erp/asreported/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if cfg.RedisAddr == "" {
		logger.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}

	rt, err := app.NewRuntime(ctx, cfg, logger, "worker")
	if err != nil {
		logger.Error("init runtime", slog.Any("error", err))
		os.Exit(1)
	}
	defer rt.Close()

	consolidator := jobs.NewConsolidateWorkbookJob(rt.Service, logger, rt.JobMetrics)
	bumper := &jobs.CacheBumpJob{Cache: rt.Cache, Logger: logger, Metrics: rt.JobMetrics}

	var cron []jobs.CronRegistration
	if cfg.CacheBumpCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.CacheBumpCron,
			Task:    jobs.NewCacheBumpTask(),
			Options: []asynq.Option{asynq.MaxRetry(1)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.RedisOptions().Asynq(),
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskConsolidateWorkbook, Handler: consolidator.Handle},
			{Type: jobs.TaskCacheBump, Handler: bumper.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	// The worker exposes only metrics and health on the app address.
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	server := &http.Server{Addr: cfg.AppAddr, Handler: mux, ReadTimeout: cfg.AppReadTimeout}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
