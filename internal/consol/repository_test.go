package consol

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/asreported/internal/statement"
)

type recordingTx struct {
	pgx.Tx
	execArgs  [][]any
	execErr   error
	batch     *pgx.Batch
	committed bool
}

func (tx *recordingTx) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	tx.execArgs = append(tx.execArgs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), tx.execErr
}

func (tx *recordingTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	tx.batch = b
	return okBatch{}
}

func (tx *recordingTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *recordingTx) Rollback(context.Context) error { return nil }

type okBatch struct {
	pgx.BatchResults
}

func (okBatch) Exec() (pgconn.CommandTag, error) { return pgconn.NewCommandTag("INSERT 0 1"), nil }
func (okBatch) Close() error                     { return nil }

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

type recordingPool struct {
	tx  *recordingTx
	row pgx.Row
}

func (p *recordingPool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) { return p.tx, nil }

func (p *recordingPool) QueryRow(context.Context, string, ...any) pgx.Row { return p.row }

// requireNotNullArrays fails when a []string argument would be sent as SQL NULL.
func requireNotNullArrays(t *testing.T, args []any) {
	t.Helper()
	types := pgtype.NewMap()
	for i, arg := range args {
		values, ok := arg.([]string)
		if !ok {
			continue
		}
		buf, err := types.Encode(pgtype.TextArrayOID, pgtype.BinaryFormatCode, values, nil)
		require.NoError(t, err)
		require.NotNil(t, buf, "argument %d encodes as NULL", i)
	}
}

func TestSaveRunSendsEmptyArraysForLearnedRules(t *testing.T) {
	in := buildInput(
		sheet{tab: "s1", periods: []string{"P1"}, rows: []line{rw("Tax A", "10"), rw("Tax B", "5")}},
		sheet{tab: "s2", periods: []string{"P1"}, rows: []line{rw("Tax Total", "15")}},
	)
	_, res, err := runEngine(t, in, Config{})
	require.NoError(t, err)
	require.Len(t, res.Rules, 1)
	require.Empty(t, res.Rules[0].InvalidSources)

	unused := CombinationRule{
		BaseTuple: []statement.ItemKey{statement.Key("x")},
		CompTuple: []statement.ItemKey{statement.Key("y")},
	}
	pool := &recordingPool{tx: &recordingTx{}}
	repo := newRepository(pool)
	err = repo.SaveRun(context.Background(), Run{
		ID:        "8f14e45f-ceea-4e7a-9b1c-3a1d2b3c4d5e",
		Digest:    "d1",
		Periods:   res.Periods,
		Rows:      len(res.Rows),
		Rules:     append(res.Rules, unused),
		Journal:   res.Journal,
		CreatedAt: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, pool.tx.committed)

	require.Len(t, pool.tx.execArgs, 1)
	requireNotNullArrays(t, pool.tx.execArgs[0])
	require.NotNil(t, pool.tx.batch)
	require.Len(t, pool.tx.batch.QueuedQueries, 2+len(res.Journal))
	for _, q := range pool.tx.batch.QueuedQueries {
		requireNotNullArrays(t, q.Arguments)
	}
}

func TestSaveRunMapsUniqueViolation(t *testing.T) {
	pool := &recordingPool{tx: &recordingTx{execErr: &pgconn.PgError{Code: "23505"}}}
	err := newRepository(pool).SaveRun(context.Background(), Run{ID: "r1", Digest: "d1"})
	require.ErrorIs(t, err, ErrRunExists)
	require.False(t, pool.tx.committed)
}

func TestFindRunMapsNoRows(t *testing.T) {
	pool := &recordingPool{row: rowFunc(func(...any) error { return pgx.ErrNoRows })}
	_, err := newRepository(pool).FindRun(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)

	_, err = NewRepository(nil).FindRun(context.Background(), "missing")
	require.Error(t, err)
}
