package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- Shared test doubles for the DBTX / Pool interfaces ---

type sqlCall struct {
	sql  string
	args []any
}

// fakeRow implements pgx.Row with an injectable scan function.
type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// errRow is a pgx.Row that always fails with the given error.
func errRow(err error) fakeRow {
	return fakeRow{scan: func(...any) error { return err }}
}

// noopRow scans nothing successfully, for statements whose RETURNING values
// the test does not care about.
var noopRow = fakeRow{scan: func(...any) error { return nil }}

// uniqueErr builds a PostgreSQL unique violation error.
func uniqueErr() error {
	return &pgconn.PgError{Code: "23505"}
}

// fakeBatchResults counts Exec calls and reports one affected row each.
type fakeBatchResults struct {
	remaining int
	execErr   error
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if b.execErr != nil {
		return pgconn.CommandTag{}, b.execErr
	}
	b.remaining--
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (b *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (b *fakeBatchResults) QueryRow() pgx.Row        { return errRow(errors.New("not implemented")) }
func (b *fakeBatchResults) Close() error             { return nil }

// fakeDB implements DBTX, recording calls and delegating row production to
// injectable functions.
type fakeDB struct {
	execCalls  []sqlCall
	queryCalls []sqlCall
	rowCalls   []sqlCall
	batches    []*pgx.Batch

	execErr    error
	execTag    string
	queryRowFn func(sql string, args []any) pgx.Row
	batchErr   error
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execCalls = append(f.execCalls, sqlCall{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	tag := f.execTag
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queryCalls = append(f.queryCalls, sqlCall{sql: sql, args: args})
	return nil, errors.New("query not stubbed")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.rowCalls = append(f.rowCalls, sqlCall{sql: sql, args: args})
	if f.queryRowFn != nil {
		return f.queryRowFn(sql, args)
	}
	return errRow(pgx.ErrNoRows)
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batches = append(f.batches, b)
	return &fakeBatchResults{remaining: b.Len(), execErr: f.batchErr}
}

// fakeTx wraps a fakeDB into a pgx.Tx, recording commit/rollback.
type fakeTx struct {
	*fakeDB
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}

func (t *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}

func (t *fakeTx) Conn() *pgx.Conn { return nil }

// fakePool satisfies Pool, handing out a single fakeTx.
type fakePool struct {
	*fakeDB
	tx *fakeTx
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) { return p.tx, nil }
