package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/asreported/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsolidateWorkbook consolidates a workbook from disk and writes the result next to it.
	TaskConsolidateWorkbook = "consol:workbook"
	// TaskCacheBump invalidates every cached consolidation result.
	TaskCacheBump = "consol:cache-bump"
)

var (
	defaultJobMetrics = jobmetrics.NewMetrics(nil)
	payloadValidator  = validator.New()
)

// ConsolidateWorkbookPayload locates the input and output workbooks of a run.
type ConsolidateWorkbookPayload struct {
	InputPath      string `json:"input_path" validate:"required"`
	OutputPath     string `json:"output_path" validate:"required,nefield=InputPath"`
	Irreconcilable bool   `json:"irreconcilable"`
}

// NewConsolidateWorkbookTask constructs an Asynq task for a workbook run.
func NewConsolidateWorkbookTask(payload ConsolidateWorkbookPayload) (*asynq.Task, error) {
	if err := payloadValidator.Struct(payload); err != nil {
		return nil, fmt.Errorf("consolidate workbook: invalid payload: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolidateWorkbook, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewCacheBumpTask constructs the cache invalidation task.
func NewCacheBumpTask() *asynq.Task {
	return asynq.NewTask(TaskCacheBump, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}
