package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/asreported/internal/consol"
	jobmetrics "github.com/odyssey-erp/asreported/internal/jobs"
	"github.com/odyssey-erp/asreported/internal/statement"
)

type stubConsolidator struct {
	out   consol.Outcome
	err   error
	opts  consol.Options
	input []byte
}

func (s *stubConsolidator) Consolidate(_ context.Context, workbook []byte, opts consol.Options) (consol.Outcome, error) {
	s.input = workbook
	s.opts = opts
	return s.out, s.err
}

func workbookTask(t *testing.T, payload ConsolidateWorkbookPayload) *asynq.Task {
	t.Helper()
	task, err := NewConsolidateWorkbookTask(payload)
	require.NoError(t, err)
	return task
}

func TestConsolidateWorkbookJobWritesOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.xlsx")
	output := filepath.Join(dir, "out", "consolidated.xlsx")
	require.NoError(t, os.WriteFile(input, []byte("workbook"), 0o600))

	svc := &stubConsolidator{out: consol.Outcome{
		RunID:    "run-1",
		Digest:   "abc",
		Result:   &consol.Result{Rows: make([]consol.ResultRow, 3)},
		Workbook: []byte("result"),
	}}
	job := NewConsolidateWorkbookJob(svc, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), workbookTask(t, ConsolidateWorkbookPayload{InputPath: input, OutputPath: output, Irreconcilable: true}))
	require.NoError(t, err)
	require.Equal(t, "workbook", string(svc.input))
	require.True(t, svc.opts.Irreconcilable)

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, "result", string(got))
}

func TestConsolidateWorkbookJobSkipsRetryOnBadInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.xlsx")
	require.NoError(t, os.WriteFile(input, []byte("workbook"), 0o600))
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())

	cases := map[string]struct {
		task *asynq.Task
		err  error
	}{
		"garbage payload": {task: asynq.NewTask(TaskConsolidateWorkbook, []byte("{"))},
		"missing output":  {task: asynq.NewTask(TaskConsolidateWorkbook, []byte(`{"input_path":"x"}`))},
		"missing input": {task: workbookTask(t, ConsolidateWorkbookPayload{
			InputPath:  filepath.Join(dir, "absent.xlsx"),
			OutputPath: filepath.Join(dir, "out.xlsx"),
		})},
		"data error": {
			task: workbookTask(t, ConsolidateWorkbookPayload{InputPath: input, OutputPath: filepath.Join(dir, "out.xlsx")}),
			err:  &consol.SumMismatchError{Source: "fy23"},
		},
		"duplicate item": {
			task: workbookTask(t, ConsolidateWorkbookPayload{InputPath: input, OutputPath: filepath.Join(dir, "out.xlsx")}),
			err:  statement.ErrDuplicateItem,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			job := NewConsolidateWorkbookJob(&stubConsolidator{err: tc.err}, nil, metrics)
			err := job.Handle(context.Background(), tc.task)
			require.ErrorIs(t, err, asynq.SkipRetry)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestConsolidateWorkbookJobRetriesInfrastructureErrors(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.xlsx")
	require.NoError(t, os.WriteFile(input, []byte("workbook"), 0o600))
	boom := errors.New("redis: connection refused")

	job := NewConsolidateWorkbookJob(&stubConsolidator{err: boom}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), workbookTask(t, ConsolidateWorkbookPayload{InputPath: input, OutputPath: filepath.Join(dir, "out.xlsx")}))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestNewConsolidateWorkbookTaskValidates(t *testing.T) {
	_, err := NewConsolidateWorkbookTask(ConsolidateWorkbookPayload{InputPath: "a.xlsx", OutputPath: "a.xlsx"})
	require.Error(t, err)

	task := workbookTask(t, ConsolidateWorkbookPayload{InputPath: "a.xlsx", OutputPath: "b.xlsx"})
	require.Equal(t, TaskConsolidateWorkbook, task.Type())
	var payload ConsolidateWorkbookPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "b.xlsx", payload.OutputPath)
}

type stubBumper struct {
	calls int
	err   error
}

func (s *stubBumper) Bump(context.Context) error {
	s.calls++
	return s.err
}

func TestCacheBumpJob(t *testing.T) {
	bumper := &stubBumper{}
	job := &CacheBumpJob{Cache: bumper, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	require.NoError(t, job.Handle(context.Background(), NewCacheBumpTask()))
	require.Equal(t, 1, bumper.calls)

	bumper.err = errors.New("down")
	require.Error(t, job.Handle(context.Background(), NewCacheBumpTask()))

	require.Error(t, (&CacheBumpJob{}).Handle(context.Background(), NewCacheBumpTask()))
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}

type stubInspector struct {
	queue *asynq.QueueInfo
	task  *asynq.TaskInfo
	err   error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.queue, s.err }
func (s stubInspector) GetTaskInfo(string, string) (*asynq.TaskInfo, error) {
	return s.task, s.err
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandlerHealth(t *testing.T) {
	rec := serve(NewHandler(nil, nil), "/jobs/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"failed":0}`, rec.Body.String())

	rec = serve(NewHandler(stubInspector{queue: &asynq.QueueInfo{Queue: "default", Pending: 2, Failed: 1}}, nil), "/jobs/health")
	require.JSONEq(t, `{"queue":"default","pending":2,"active":0,"retry":0,"failed":1}`, rec.Body.String())

	rec = serve(NewHandler(stubInspector{err: errors.New("down")}, nil), "/jobs/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerTask(t *testing.T) {
	rec := serve(NewHandler(stubInspector{task: &asynq.TaskInfo{ID: "t1", Type: TaskConsolidateWorkbook, State: asynq.TaskStatePending}}, nil), "/jobs/tasks/t1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body taskStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "pending", body.State)
	require.Equal(t, TaskConsolidateWorkbook, body.Type)

	rec = serve(NewHandler(stubInspector{err: asynq.ErrTaskNotFound}, nil), "/jobs/tasks/zz")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(NewHandler(nil, nil), "/jobs/tasks/zz")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
