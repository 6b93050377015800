// Package http exposes consolidation over HTTP: workbook upload in, consolidated
// workbook or CSV out.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/asreported/internal/consol"
	"github.com/odyssey-erp/asreported/internal/consol/xlsx"
	"github.com/odyssey-erp/asreported/internal/platform/httpx"
)

const (
	formField       = "workbook"
	defaultMaxBytes = 32 << 20
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Consolidator runs a consolidation for an uploaded workbook.
type Consolidator interface {
	Consolidate(ctx context.Context, workbook []byte, opts consol.Options) (consol.Outcome, error)
}

// RunFinder looks up stored runs.
type RunFinder interface {
	FindRun(ctx context.Context, digest string) (consol.RunSummary, error)
}

// Handler wires consolidation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Consolidator
	runs      RunFinder
	validate  *validator.Validate
	maxBytes  int64
	rateLimit func(http.Handler) http.Handler
}

type uploadParams struct {
	Format         string `validate:"omitempty,oneof=xlsx csv"`
	Irreconcilable string `validate:"omitempty,boolean"`
}

// NewHandler constructs the consolidation handler. runs may be nil when runs
// are not persisted.
func NewHandler(logger *slog.Logger, service Consolidator, runs RunFinder, maxBytes int64) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("consol handler: service required")
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	limiter := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{
		logger:    logger,
		service:   service,
		runs:      runs,
		validate:  validator.New(),
		maxBytes:  maxBytes,
		rateLimit: limiter,
	}, nil
}

// MountRoutes registers consolidation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/consolidations", h.handleConsolidate)
	})
	r.Get("/consolidations/{digest}", h.handleGetRun)
}

func (h *Handler) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid multipart upload: %v", httpx.ErrValidation, err))
		return
	}
	params := uploadParams{Format: r.FormValue("format"), Irreconcilable: r.FormValue("irreconcilable")}
	if err := h.validate.Struct(params); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	file, _, err := r.FormFile(formField)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: workbook file is required", httpx.ErrValidation))
		return
	}
	defer func() { _ = file.Close() }()
	workbook, err := io.ReadAll(file)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: read workbook: %v", httpx.ErrValidation, err))
		return
	}
	opts := consol.Options{}
	if params.Irreconcilable != "" {
		opts.Irreconcilable, _ = strconv.ParseBool(params.Irreconcilable)
	}

	out, err := h.service.Consolidate(r.Context(), workbook, opts)
	if err != nil {
		err = classify(err)
		if status := httpx.StatusFor(err); status >= http.StatusInternalServerError {
			h.log().Error("consolidation failed", slog.Int("status", status), slog.Any("error", err))
		} else {
			h.log().Info("consolidation rejected", slog.Int("status", status), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	if out.RunID != "" {
		w.Header().Set("X-Consol-Run-ID", out.RunID)
	}
	w.Header().Set("X-Consol-Digest", out.Digest)
	w.Header().Set("X-Consol-Cache", cacheHeader(out.Cached))
	if params.Format == "csv" {
		buf := &bytes.Buffer{}
		if err := writeResultCSV(buf, out); err != nil {
			h.log().Error("write consolidation csv", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="consolidated.csv"`)
		_, _ = w.Write(buf.Bytes())
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="consolidated.xlsx"`)
	_, _ = w.Write(out.Workbook)
}

type runResponse struct {
	ID             string    `json:"id"`
	Digest         string    `json:"digest"`
	Irreconcilable bool      `json:"irreconcilable"`
	Sources        []string  `json:"sources"`
	Periods        []string  `json:"periods"`
	Rows           int       `json:"rows"`
	Rules          int       `json:"rules"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		httpx.RespondError(w, fmt.Errorf("%w: run history disabled", httpx.ErrNotFound))
		return
	}
	run, err := h.runs.FindRun(r.Context(), chi.URLParam(r, "digest"))
	if err != nil {
		if errors.Is(err, consol.ErrRunNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, err))
			return
		}
		h.log().Error("find consolidation run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runResponse{
		ID:             run.ID,
		Digest:         run.Digest,
		Irreconcilable: run.Irreconcilable,
		Sources:        run.Sources,
		Periods:        run.Periods,
		Rows:           run.Rows,
		Rules:          run.Rules,
		CreatedAt:      run.CreatedAt,
	})
}

// classify tags workbook content problems as unprocessable.
func classify(err error) error {
	if xlsx.IsInputError(err) {
		return fmt.Errorf("%w: %w", httpx.ErrUnprocessable, err)
	}
	return err
}

func cacheHeader(cached bool) string {
	if cached {
		return "HIT"
	}
	return "MISS"
}

func (h *Handler) log() *slog.Logger {
	if h != nil && h.logger != nil {
		return h.logger.With(slog.String("component", "consol_http"))
	}
	return slog.Default().With(slog.String("component", "consol_http"))
}
