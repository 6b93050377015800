package consol

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/asreported/internal/statement"
)

type stubCodec struct {
	input   statement.Input
	decodes int
	encodes int
}

func (c *stubCodec) Decode(io.Reader) (statement.Input, error) {
	c.decodes++
	return c.input, nil
}

func (c *stubCodec) EncodeResult(w io.Writer, res *Result) error {
	c.encodes++
	_, err := io.WriteString(w, "rows:"+res.Rows[0].Key.Label())
	return err
}

type stubStore struct {
	runs []Run
	err  error
}

func (s *stubStore) SaveRun(_ context.Context, run Run) error {
	s.runs = append(s.runs, run)
	return s.err
}

func newTestService(t *testing.T, codec Codec, store RunStore) (*Service, *ResultCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewResultCache(client, time.Minute)
	svc := NewService(codec, store, cache, Config{}, nil, nil)
	svc.WithClock(func() time.Time { return time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC) })
	return svc, cache
}

func TestServiceConsolidateCaches(t *testing.T) {
	codec := &stubCodec{input: buildInput(
		sheet{tab: "s1", periods: []string{"P1"}, rows: []line{rw("Revenue", "100")}},
		sheet{tab: "s2", periods: []string{"P1", "P2"}, rows: []line{rw("Revenue", "100", "80")}},
	)}
	store := &stubStore{}
	svc, cache := newTestService(t, codec, store)
	ctx := context.Background()
	workbook := []byte("workbook")

	first, err := svc.Consolidate(ctx, workbook, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Cached {
		t.Fatalf("expected fresh run")
	}
	if string(first.Workbook) != "rows:revenue" {
		t.Fatalf("unexpected workbook %q", first.Workbook)
	}
	if len(store.runs) != 1 {
		t.Fatalf("expected 1 stored run, got %d", len(store.runs))
	}
	stored := store.runs[0]
	if stored.ID != first.RunID || stored.Digest != first.Digest || stored.Rows != 1 {
		t.Fatalf("unexpected stored run %+v", stored)
	}
	if len(stored.Sources) != 2 || stored.Sources[1] != "s2" {
		t.Fatalf("unexpected sources %v", stored.Sources)
	}

	second, err := svc.Consolidate(ctx, workbook, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Cached || second.RunID != first.RunID {
		t.Fatalf("expected cached run %s, got %+v", first.RunID, second)
	}
	if codec.decodes != 1 {
		t.Fatalf("expected 1 decode, got %d", codec.decodes)
	}
	if got := second.Result.Rows[0].Values["P2"].String(); got != "80" {
		t.Fatalf("expected cached value 80, got %s", got)
	}

	if _, err := svc.Consolidate(ctx, workbook, Options{Irreconcilable: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if codec.decodes != 2 {
		t.Fatalf("options must change the digest, decodes %d", codec.decodes)
	}

	if err := cache.Bump(ctx); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	if _, err := svc.Consolidate(ctx, workbook, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if codec.decodes != 3 {
		t.Fatalf("expected reload after bump, decodes %d", codec.decodes)
	}
}

type recordedStore struct {
	stubStore
	stored RunSummary
	err    error
}

func (s *recordedStore) FindRun(_ context.Context, digest string) (RunSummary, error) {
	if s.err != nil {
		return RunSummary{}, s.err
	}
	if digest != s.stored.Digest {
		return RunSummary{}, ErrRunNotFound
	}
	return s.stored, nil
}

func TestServiceReturnsStoredRunIDForExistingRun(t *testing.T) {
	codec := &stubCodec{input: buildInput(
		sheet{tab: "s1", periods: []string{"P1"}, rows: []line{rw("Revenue", "100")}},
	)}
	store := &recordedStore{
		stubStore: stubStore{err: ErrRunExists},
		stored:    RunSummary{ID: "stored-run", Digest: Digest([]byte("x"), Options{})},
	}
	svc := NewService(codec, store, nil, Config{}, nil, nil)
	out, err := svc.Consolidate(context.Background(), []byte("x"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.RunID != "stored-run" || out.Cached {
		t.Fatalf("expected stored run id, got %+v", out)
	}
	if len(store.runs) != 1 || store.runs[0].ID == "stored-run" {
		t.Fatalf("expected one save attempt with a fresh id, got %+v", store.runs)
	}
}

func TestServiceDropsUnsavedRunIDForExistingRun(t *testing.T) {
	codec := &stubCodec{input: buildInput(
		sheet{tab: "s1", periods: []string{"P1"}, rows: []line{rw("Revenue", "100")}},
	)}
	for name, store := range map[string]RunStore{
		"no lookup":     &stubStore{err: ErrRunExists},
		"lookup failed": &recordedStore{stubStore: stubStore{err: ErrRunExists}, err: errors.New("db down")},
	} {
		svc := NewService(codec, store, nil, Config{}, nil, nil)
		out, err := svc.Consolidate(context.Background(), []byte("x"), Options{})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if out.RunID != "" {
			t.Fatalf("%s: expected no run id, got %q", name, out.RunID)
		}
	}
}

func TestServicePropagatesEngineErrors(t *testing.T) {
	codec := &stubCodec{input: buildInput(
		sheet{tab: "s1", periods: []string{"P1"}, rows: []line{rw("Revenue", "100")}},
		sheet{tab: "s2", periods: []string{"P1"}, rows: []line{rw("Revenue", "90")}},
	)}
	store := &stubStore{}
	svc := NewService(codec, store, nil, Config{}, nil, nil)
	_, err := svc.Consolidate(context.Background(), []byte("x"), Options{})
	if !errors.Is(err, ErrSumMismatch) {
		t.Fatalf("expected sum mismatch, got %v", err)
	}
	if len(store.runs) != 0 {
		t.Fatalf("failed runs must not be stored")
	}
}

func TestDigestDependsOnOptions(t *testing.T) {
	a := Digest([]byte("wb"), Options{})
	b := Digest([]byte("wb"), Options{Irreconcilable: true})
	if a == b || len(a) != 64 {
		t.Fatalf("unexpected digests %s %s", a, b)
	}
}
