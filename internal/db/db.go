// Package db provides PostgreSQL-backed repository implementations for the
// driftwatch engine. All repositories accept a DBTX interface that is
// satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
//
// Schema (applied out-of-band by the deployment tooling):
//
//	CREATE TABLE regions (
//	    id   UUID PRIMARY KEY,
//	    code TEXT NOT NULL UNIQUE,
//	    name TEXT NOT NULL
//	);
//
//	CREATE TABLE predictors (
//	    id                 UUID PRIMARY KEY,
//	    region_id          UUID NOT NULL REFERENCES regions(id) ON DELETE CASCADE,
//	    trained_through    DATE NOT NULL,
//	    weights            BYTEA,
//	    yearly_seasonality DOUBLE PRECISION[],
//	    trend              DOUBLE PRECISION[],
//	    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    CONSTRAINT unique_predictor UNIQUE (region_id, trained_through)
//	);
//	CREATE INDEX idx_predictors_region_trained ON predictors (region_id, trained_through);
//
//	CREATE TABLE observations (
//	    id              UUID PRIMARY KEY,
//	    region_id       UUID NOT NULL REFERENCES regions(id) ON DELETE CASCADE,
//	    predictor_id    UUID REFERENCES predictors(id) ON DELETE RESTRICT,
//	    date            DATE NOT NULL,
//	    value           DOUBLE PRECISION,
//	    predicted_value DOUBLE PRECISION,
//	    lower_value     DOUBLE PRECISION,
//	    upper_value     DOUBLE PRECISION,
//	    anomaly_degree  DOUBLE PRECISION,
//	    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    CONSTRAINT unique_observation UNIQUE (region_id, date)
//	);
//	CREATE INDEX idx_observations_date ON observations (date);
//	CREATE INDEX idx_observations_predictor_date ON observations (predictor_id, date);
//
//	CREATE TABLE prediction_progress (
//	    id               UUID PRIMARY KEY,
//	    date             DATE NOT NULL UNIQUE,
//	    success_fraction DOUBLE PRECISION NOT NULL DEFAULT 0
//	);
//
// The anomaly_degree column is a plain cached field, not a generated column:
// Go code recomputes it through the anomaly package on every write that
// changes value, lower_value, or upper_value.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// TxBeginner is satisfied by *pgxpool.Pool; repositories that need real
// transactions (row locks) accept it instead of DBTX.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint
// violations, the signal driving the predictor-creation compare-and-swap.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
