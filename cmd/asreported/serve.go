package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/asreported/internal/app"
	consolhttp "github.com/odyssey-erp/asreported/internal/consol/http"
	"github.com/odyssey-erp/asreported/jobs"
)

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	rt, err := app.NewRuntime(ctx, cfg, logger, "api")
	if err != nil {
		return err
	}
	defer rt.Close()

	var runs consolhttp.RunFinder
	if rt.Runs != nil {
		runs = rt.Runs
	}
	consolHandler, err := consolhttp.NewHandler(logger, rt.Service, runs, cfg.UploadMaxBytes)
	if err != nil {
		return err
	}

	var jobHandler *jobs.Handler
	if rt.Redis != nil {
		inspector := asynq.NewInspector(cfg.RedisOptions().Asynq())
		defer func() { _ = inspector.Close() }()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		ConsolHandler: consolHandler,
		JobHandler:    jobHandler,
		Metrics:       rt.Metrics,
		Dependencies:  rt.Dependencies(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}
