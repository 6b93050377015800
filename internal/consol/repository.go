package consol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/asreported/internal/platform/db"
)

// ErrRunNotFound indicates no run is stored for the requested digest.
var ErrRunNotFound = errors.New("consol: run not found")

// Run is the persisted record of a successful consolidation.
type Run struct {
	ID             string
	Digest         string
	Irreconcilable bool
	Sources        []string
	Periods        []string
	Rows           int
	Rules          []CombinationRule
	Journal        []JournalEntry
	CreatedAt      time.Time
}

// RunSummary is the stored header of a run.
type RunSummary struct {
	ID             string
	Digest         string
	Irreconcilable bool
	Sources        []string
	Periods        []string
	Rows           int
	Rules          int
	CreatedAt      time.Time
}

// Querier is the part of *pgxpool.Pool used by Repository.
type Querier interface {
	db.TxBeginner
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists consolidation runs in PostgreSQL.
type Repository struct {
	pool Querier
}

// NewRepository constructs a consolidation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		return &Repository{}
	}
	return newRepository(pool)
}

func newRepository(pool Querier) *Repository {
	return &Repository{pool: pool}
}

// SaveRun stores the run header, its rules and its journal in one transaction.
func (r *Repository) SaveRun(ctx context.Context, run Run) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("consol repo not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO consol_runs (id, digest, irreconcilable, sources, periods, row_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			run.ID, run.Digest, run.Irreconcilable, textArray(run.Sources), textArray(run.Periods), run.Rows, run.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrRunExists
			}
			return err
		}
		if len(run.Rules) == 0 && len(run.Journal) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for i, rule := range run.Rules {
			batch.Queue(`
INSERT INTO consol_rules (run_id, position, base_items, comp_items, sources, invalid_sources)
VALUES ($1, $2, $3, $4, $5, $6)`,
				run.ID, i, textArray(labelsOf(rule.BaseTuple)), textArray(labelsOf(rule.CompTuple)),
				textArray(rule.Sources), textArray(rule.InvalidSources))
		}
		for i, entry := range run.Journal {
			batch.Queue(`
INSERT INTO consol_journal (run_id, position, source, message)
VALUES ($1, $2, $3, $4)`,
				run.ID, i, entry.Source, strings.TrimSpace(entry.Message))
		}
		results := tx.SendBatch(ctx, batch)
		for range len(run.Rules) + len(run.Journal) {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return err
			}
		}
		return results.Close()
	})
}

// FindRun returns the stored summary of the run with the given digest.
func (r *Repository) FindRun(ctx context.Context, digest string) (RunSummary, error) {
	if r == nil || r.pool == nil {
		return RunSummary{}, fmt.Errorf("consol repo not initialised")
	}
	var out RunSummary
	err := r.pool.QueryRow(ctx, `
SELECT r.id, r.digest, r.irreconcilable, r.sources, r.periods, r.row_count, r.created_at,
       (SELECT COUNT(*) FROM consol_rules cr WHERE cr.run_id = r.id)
FROM consol_runs r
WHERE r.digest = $1`, digest).Scan(
		&out.ID, &out.Digest, &out.Irreconcilable, &out.Sources, &out.Periods, &out.Rows, &out.CreatedAt, &out.Rules)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RunSummary{}, ErrRunNotFound
		}
		return RunSummary{}, err
	}
	return out, nil
}

// textArray keeps nil slices from being sent as NULL into TEXT[] NOT NULL columns.
func textArray(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
