package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftwatch/internal/types"
)

func TestRegionGetByCode_UnknownIsNil(t *testing.T) {
	repo := NewRegionRepository(&fakeDB{})

	region, err := repo.GetByCode(context.Background(), "XX-ZZ")
	require.NoError(t, err, "an unknown code is a skippable outcome, not an error")
	assert.Nil(t, region)
}

func TestRegionGetByCode_ScansRow(t *testing.T) {
	fake := &fakeDB{
		queryRowFn: func(sql string, args []any) pgx.Row {
			return fakeRow{scan: func(dest ...any) error {
				*(dest[0].(*string)) = "region-1"
				*(dest[1].(*string)) = "US-CA"
				*(dest[2].(*string)) = "California"
				return nil
			}}
		},
	}
	repo := NewRegionRepository(fake)

	region, err := repo.GetByCode(context.Background(), "US-CA")
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.Equal(t, "region-1", region.ID)
	assert.Equal(t, "US-CA", region.Code)

	require.Len(t, fake.rowCalls, 1)
	assert.Equal(t, []any{"US-CA"}, fake.rowCalls[0].args)
}

func TestRegionGetByCode_DBErrorIsInternal(t *testing.T) {
	fake := &fakeDB{
		queryRowFn: func(sql string, args []any) pgx.Row {
			return errRow(&pgconn.PgError{Code: "53300"})
		},
	}
	repo := NewRegionRepository(fake)

	_, err := repo.GetByCode(context.Background(), "US-CA")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
