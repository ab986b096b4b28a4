package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"driftwatch/internal/types"
)

// Pool is the connection-pool surface required by repositories that mix
// plain queries with real transactions. *pgxpool.Pool satisfies it.
type Pool interface {
	DBTX
	TxBeginner
}

// ProgressRepository maintains the prediction_progress table: one row per
// date holding the fraction of that day's observations carrying a non-null
// prediction.
//
// Refresh recomputes the fraction wholesale inside a transaction holding a
// row lock on the date's progress row, so batch workers finishing overlapping
// date ranges concurrently cannot lose updates.
type ProgressRepository struct {
	db Pool
}

// NewProgressRepository creates a new ProgressRepository backed by the given
// connection pool.
func NewProgressRepository(db Pool) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Refresh recomputes the success fraction for one date. The fraction is 0
// when the date has no observations. The computation is a total recount, not
// incremental, so re-running it is always safe.
func (r *ProgressRepository) Refresh(ctx context.Context, date time.Time) error {
	date = types.DateOnly(date)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin progress refresh", err)
	}
	defer tx.Rollback(ctx)

	// Ensure the row exists, then lock it for the duration of the recount.
	if _, err := tx.Exec(ctx,
		`INSERT INTO prediction_progress (id, date, success_fraction)
		 VALUES ($1, $2, 0)
		 ON CONFLICT (date) DO NOTHING`,
		uuid.New().String(),
		date,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure progress row", err)
	}

	var rowID string
	if err := tx.QueryRow(ctx,
		`SELECT id FROM prediction_progress WHERE date = $1 FOR UPDATE`,
		date,
	).Scan(&rowID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to lock progress row", err)
	}

	var total, predicted int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(predicted_value)
		 FROM observations
		 WHERE date = $1`,
		date,
	).Scan(&total, &predicted); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to count observations for date", err)
	}

	fraction := 0.0
	if total > 0 {
		fraction = float64(predicted) / float64(total)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE prediction_progress SET success_fraction = $2 WHERE id = $1`,
		rowID,
		fraction,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update progress row", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit progress refresh", err)
	}
	return nil
}

// Get returns the progress record for one date, or (nil, nil) when the date
// has never been refreshed.
func (r *ProgressRepository) Get(ctx context.Context, date time.Time) (*types.PredictionProgress, error) {
	var p types.PredictionProgress
	err := r.db.QueryRow(ctx,
		`SELECT id, date, success_fraction FROM prediction_progress WHERE date = $1`,
		types.DateOnly(date),
	).Scan(&p.ID, &p.Date, &p.SuccessFraction)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get progress", err)
	}
	p.Date = types.DateOnly(p.Date)
	return &p, nil
}

// LastReliableDate returns the most recent date whose success fraction meets
// the reliability threshold, or (nil, nil) when no date qualifies yet. This
// backs the external "last reliable date" contract.
func (r *ProgressRepository) LastReliableDate(ctx context.Context) (*time.Time, error) {
	var date time.Time
	err := r.db.QueryRow(ctx,
		`SELECT date FROM prediction_progress
		 WHERE success_fraction >= $1
		 ORDER BY date DESC
		 LIMIT 1`,
		types.ReliableFractionThreshold,
	).Scan(&date)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query last reliable date", err)
	}
	date = types.DateOnly(date)
	return &date, nil
}
