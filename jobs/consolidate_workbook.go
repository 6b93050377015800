package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/asreported/internal/consol"
	"github.com/odyssey-erp/asreported/internal/consol/xlsx"
	jobmetrics "github.com/odyssey-erp/asreported/internal/jobs"
)

// Consolidator runs a consolidation for workbook bytes.
type Consolidator interface {
	Consolidate(ctx context.Context, workbook []byte, opts consol.Options) (consol.Outcome, error)
}

// ConsolidateWorkbookJob consolidates workbooks queued by path.
type ConsolidateWorkbookJob struct {
	Service Consolidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewConsolidateWorkbookJob constructs the job handler.
func NewConsolidateWorkbookJob(service Consolidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolidateWorkbookJob {
	return &ConsolidateWorkbookJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one workbook consolidation. Payload and input errors are not
// retried.
func (j *ConsolidateWorkbookJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("consolidate workbook: service not configured")
	}
	var payload ConsolidateWorkbookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		j.metrics().ObserveRejected(TaskConsolidateWorkbook, "payload")
		return fmt.Errorf("consolidate workbook: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payloadValidator.Struct(payload); err != nil {
		j.metrics().ObserveRejected(TaskConsolidateWorkbook, "payload")
		return fmt.Errorf("consolidate workbook: invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskConsolidateWorkbook)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log().With(slog.String("input", payload.InputPath), slog.Bool("irreconcilable", payload.Irreconcilable))
	start := time.Now()

	workbook, err := os.ReadFile(payload.InputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			j.metrics().ObserveRejected(TaskConsolidateWorkbook, "input")
			resultErr = fmt.Errorf("consolidate workbook: %w: %w", err, asynq.SkipRetry)
			return resultErr
		}
		resultErr = fmt.Errorf("consolidate workbook: read input: %w", err)
		return resultErr
	}

	out, err := j.Service.Consolidate(ctx, workbook, consol.Options{Irreconcilable: payload.Irreconcilable})
	if err != nil {
		if xlsx.IsInputError(err) {
			j.metrics().ObserveRejected(TaskConsolidateWorkbook, "data")
			logger.Warn("workbook rejected", slog.Any("error", err))
			resultErr = fmt.Errorf("consolidate workbook: %w: %w", err, asynq.SkipRetry)
			return resultErr
		}
		logger.Error("consolidation failed", slog.Any("error", err))
		resultErr = err
		return resultErr
	}

	if err := os.MkdirAll(filepath.Dir(payload.OutputPath), 0o755); err != nil {
		resultErr = fmt.Errorf("consolidate workbook: create output dir: %w", err)
		return resultErr
	}
	if err := os.WriteFile(payload.OutputPath, out.Workbook, 0o644); err != nil {
		resultErr = fmt.Errorf("consolidate workbook: write output: %w", err)
		return resultErr
	}

	rows := 0
	if out.Result != nil {
		rows = len(out.Result.Rows)
	}
	j.metrics().AddRows(TaskConsolidateWorkbook, rows)
	logger.Info("consolidated workbook",
		slog.String("output", payload.OutputPath),
		slog.String("run_id", out.RunID),
		slog.String("digest", out.Digest),
		slog.Bool("cached", out.Cached),
		slog.Int("rows", rows),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *ConsolidateWorkbookJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ConsolidateWorkbookJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskConsolidateWorkbook))
	}
	return slog.Default().With(slog.String("job", TaskConsolidateWorkbook))
}
