package db

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// progressTx builds a fakeTx whose QueryRow answers the lock select and the
// per-date counts.
func progressTx(total, predicted int) *fakeTx {
	inner := &fakeDB{}
	inner.queryRowFn = func(sql string, args []any) pgx.Row {
		switch {
		case strings.Contains(sql, "FOR UPDATE"):
			return fakeRow{scan: func(dest ...any) error {
				*(dest[0].(*string)) = "progress-row"
				return nil
			}}
		case strings.Contains(sql, "COUNT"):
			return fakeRow{scan: func(dest ...any) error {
				*(dest[0].(*int)) = total
				*(dest[1].(*int)) = predicted
				return nil
			}}
		default:
			return errRow(pgx.ErrNoRows)
		}
	}
	return &fakeTx{fakeDB: inner}
}

func TestProgressRefresh_ComputesFraction(t *testing.T) {
	tx := progressTx(10, 6)
	pool := &fakePool{fakeDB: &fakeDB{}, tx: tx}
	repo := NewProgressRepository(pool)

	require.NoError(t, repo.Refresh(context.Background(), day(2024, 5, 1)))
	assert.True(t, tx.committed)

	// Last exec is the fraction update.
	require.NotEmpty(t, tx.execCalls)
	last := tx.execCalls[len(tx.execCalls)-1]
	assert.Equal(t, "progress-row", last.args[0])
	assert.InDelta(t, 0.6, last.args[1].(float64), 1e-12)
}

func TestProgressRefresh_NoObservationsIsZero(t *testing.T) {
	tx := progressTx(0, 0)
	pool := &fakePool{fakeDB: &fakeDB{}, tx: tx}
	repo := NewProgressRepository(pool)

	require.NoError(t, repo.Refresh(context.Background(), day(2024, 5, 1)))

	last := tx.execCalls[len(tx.execCalls)-1]
	assert.Equal(t, 0.0, last.args[1].(float64))
}

func TestProgressRefresh_LocksBeforeCounting(t *testing.T) {
	tx := progressTx(4, 4)
	pool := &fakePool{fakeDB: &fakeDB{}, tx: tx}
	repo := NewProgressRepository(pool)

	require.NoError(t, repo.Refresh(context.Background(), day(2024, 5, 1)))

	require.Len(t, tx.rowCalls, 2)
	assert.Contains(t, tx.rowCalls[0].sql, "FOR UPDATE")
	assert.Contains(t, tx.rowCalls[1].sql, "COUNT")
}

func TestProgressGet_MissingIsNil(t *testing.T) {
	pool := &fakePool{fakeDB: &fakeDB{}, tx: &fakeTx{fakeDB: &fakeDB{}}}
	repo := NewProgressRepository(pool)

	p, err := repo.Get(context.Background(), day(2024, 5, 1))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLastReliableDate_None(t *testing.T) {
	pool := &fakePool{fakeDB: &fakeDB{}, tx: &fakeTx{fakeDB: &fakeDB{}}}
	repo := NewProgressRepository(pool)

	d, err := repo.LastReliableDate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, d)
}
