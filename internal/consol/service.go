package consol

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/asreported/internal/statement"
)

// Codec converts between workbooks and the engine model.
type Codec interface {
	Decode(r io.Reader) (statement.Input, error)
	EncodeResult(w io.Writer, res *Result) error
}

// RunStore persists successful runs.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
}

// RunLookup is implemented by stores that can return a run saved earlier.
type RunLookup interface {
	FindRun(ctx context.Context, digest string) (RunSummary, error)
}

// Options adjusts a single consolidation request.
type Options struct {
	Irreconcilable bool
}

// Outcome is the product of Service.Consolidate.
type Outcome struct {
	RunID    string
	Digest   string
	Result   *Result
	Workbook []byte
	Cached   bool
}

// Service orchestrates decoding, consolidation, persistence and caching.
type Service struct {
	codec   Codec
	store   RunStore
	cache   *ResultCache
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	group   singleflight.Group
	now     func() time.Time
	newID   func() string
}

// NewService constructs a consolidation service. store and cache are optional.
func NewService(codec Codec, store RunStore, cache *ResultCache, cfg Config, logger *slog.Logger, metrics *Metrics) *Service {
	return &Service{
		codec:   codec,
		store:   store,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Digest identifies a workbook together with the options it is consolidated with.
func Digest(workbook []byte, opts Options) string {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write(workbook)
	if opts.Irreconcilable {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Consolidate runs the engine over workbook. Identical concurrent requests share
// one run and repeated requests are served from the cache.
func (s *Service) Consolidate(ctx context.Context, workbook []byte, opts Options) (Outcome, error) {
	if s == nil || s.codec == nil {
		return Outcome{}, fmt.Errorf("consol service not initialised")
	}
	digest := Digest(workbook, opts)
	ch := s.group.DoChan(digest, func() (interface{}, error) {
		return s.consolidate(ctx, digest, workbook, opts)
	})
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Outcome{}, res.Err
		}
		return res.Val.(Outcome), nil
	}
}

func (s *Service) consolidate(ctx context.Context, digest string, workbook []byte, opts Options) (Outcome, error) {
	cached, ok, err := s.cache.Load(ctx, digest)
	if err != nil {
		s.log().Warn("consolidation cache load failed", slog.String("digest", digest), slog.Any("error", err))
	}
	if ok {
		s.metrics.observeCache("hit")
		return Outcome{RunID: cached.RunID, Digest: digest, Result: cached.Result, Workbook: cached.Workbook, Cached: true}, nil
	}
	s.metrics.observeCache("miss")

	input, err := s.codec.Decode(bytes.NewReader(workbook))
	if err != nil {
		return Outcome{}, err
	}
	cfg := s.cfg
	cfg.Irreconcilable = opts.Irreconcilable
	engine, err := NewEngine(input, cfg, s.logger, s.metrics)
	if err != nil {
		return Outcome{}, err
	}
	result, err := engine.Run(ctx)
	if err != nil {
		return Outcome{}, err
	}
	var buf bytes.Buffer
	if err := s.codec.EncodeResult(&buf, result); err != nil {
		return Outcome{}, fmt.Errorf("encode result: %w", err)
	}
	out := Outcome{RunID: s.newID(), Digest: digest, Result: result, Workbook: buf.Bytes()}

	if s.store != nil {
		run := Run{
			ID:             out.RunID,
			Digest:         digest,
			Irreconcilable: opts.Irreconcilable,
			Sources:        result.Sources,
			Periods:        result.Periods,
			Rows:           len(result.Rows),
			Rules:          result.Rules,
			Journal:        result.Journal,
			CreatedAt:      s.now(),
		}
		if err := s.store.SaveRun(ctx, run); err != nil {
			if !errors.Is(err, ErrRunExists) {
				return Outcome{}, fmt.Errorf("save run: %w", err)
			}
			out.RunID = s.storedRunID(ctx, digest)
			s.log().Info("consolidation run already recorded", slog.String("digest", digest), slog.String("run_id", out.RunID))
		}
	}
	if err := s.cache.Store(ctx, digest, CachedRun{RunID: out.RunID, Result: result, Workbook: out.Workbook}); err != nil {
		s.log().Warn("consolidation cache store failed", slog.String("digest", digest), slog.Any("error", err))
	}
	s.log().Info("consolidation completed",
		slog.String("run_id", out.RunID),
		slog.String("digest", digest),
		slog.Int("rows", len(result.Rows)),
		slog.Int("rules", len(result.Rules)))
	return out, nil
}

// storedRunID returns the ID of the run already saved for digest, or "" when
// the store cannot tell.
func (s *Service) storedRunID(ctx context.Context, digest string) string {
	lookup, ok := s.store.(RunLookup)
	if !ok {
		return ""
	}
	stored, err := lookup.FindRun(ctx, digest)
	if err != nil {
		s.log().Warn("consolidation run lookup failed", slog.String("digest", digest), slog.Any("error", err))
		return ""
	}
	return stored.ID
}

func (s *Service) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger.With(slog.String("component", "consol_service"))
	}
	return slog.Default().With(slog.String("component", "consol_service"))
}
