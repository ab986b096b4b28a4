package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"driftwatch/internal/types"
)

// PredictorRepository provides data access for the predictors table. The
// unique_predictor constraint on (region_id, trained_through) is load-bearing:
// concurrent creation races are resolved by attempting the insert
// optimistically and re-reading on conflict (see Create).
type PredictorRepository struct {
	db DBTX
}

// NewPredictorRepository creates a new PredictorRepository backed by the given
// database connection (pool or transaction).
func NewPredictorRepository(db DBTX) *PredictorRepository {
	return &PredictorRepository{db: db}
}

const predictorColumns = `id, region_id, trained_through, weights, yearly_seasonality, trend, created_at`

// scanPredictor scans a single predictor row. Column order must match
// predictorColumns.
func scanPredictor(row pgx.Row) (*types.Predictor, error) {
	var p types.Predictor
	err := row.Scan(
		&p.ID,
		&p.RegionID,
		&p.TrainedThrough,
		&p.Weights,
		&p.YearlySeasonality,
		&p.Trend,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.TrainedThrough = types.DateOnly(p.TrainedThrough)
	return &p, nil
}

// GetByID fetches a predictor. Returns (nil, nil) when it does not exist;
// batch tasks treat a deleted predictor as a silent no-op.
func (r *PredictorRepository) GetByID(ctx context.Context, id string) (*types.Predictor, error) {
	p, err := scanPredictor(r.db.QueryRow(ctx,
		`SELECT `+predictorColumns+` FROM predictors WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get predictor", err)
	}
	return p, nil
}

// GetNotExpired returns the most recent predictor for the region whose
// trained-through date lies within [asOf - expiry window, asOf], or (nil, nil)
// when none qualifies. Both window ends are inclusive.
func (r *PredictorRepository) GetNotExpired(ctx context.Context, regionID string, asOf time.Time) (*types.Predictor, error) {
	asOf = types.DateOnly(asOf)
	p, err := scanPredictor(r.db.QueryRow(ctx,
		`SELECT `+predictorColumns+`
		 FROM predictors
		 WHERE region_id = $1 AND trained_through <= $2 AND trained_through >= $3
		 ORDER BY trained_through DESC
		 LIMIT 1`,
		regionID,
		asOf,
		types.ExpiryWindowStart(asOf),
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query valid predictor", err)
	}
	return p, nil
}

// Create inserts a new, untrained predictor for (regionID, trainedThrough).
// On a unique constraint violation it returns an AppError with
// ErrCodeConflictPredictor; the caller discards its attempt and re-resolves,
// deferring to the concurrently created winner.
func (r *PredictorRepository) Create(ctx context.Context, regionID string, trainedThrough time.Time) (*types.Predictor, error) {
	p := &types.Predictor{
		ID:             uuid.New().String(),
		RegionID:       regionID,
		TrainedThrough: types.DateOnly(trainedThrough),
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO predictors (id, region_id, trained_through)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		p.ID,
		p.RegionID,
		p.TrainedThrough,
	).Scan(&p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, types.NewAppError(types.ErrCodeConflictPredictor, "predictor already exists for region and date", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create predictor", err)
	}
	return p, nil
}

// SaveTraining persists the outcome of a successful fit: the weight blob and
// both derived curves. The predictor is immutable afterwards except through
// forced retraining, which routes back through here.
func (r *PredictorRepository) SaveTraining(ctx context.Context, id string, weights []byte, seasonality, trend []float64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE predictors
		 SET weights = $2, yearly_seasonality = $3, trend = $4
		 WHERE id = $1`,
		id,
		weights,
		seasonality,
		trend,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save predictor training", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPredictor, "predictor not found", nil)
	}
	return nil
}

// ListWithObservationsInRange returns the distinct predictors owning at least
// one observation dated within [from, to], optionally restricted to one
// region. This drives batch fan-out: regions with no attached predictor
// simply never appear.
func (r *PredictorRepository) ListWithObservationsInRange(ctx context.Context, regionID *string, from, to time.Time) ([]*types.Predictor, error) {
	query := `SELECT ` + predictorColumns + `
		 FROM predictors p
		 WHERE EXISTS (
		     SELECT 1 FROM observations o
		     WHERE o.predictor_id = p.id AND o.date >= $1 AND o.date <= $2
		 )`
	args := []any{types.DateOnly(from), types.DateOnly(to)}
	if regionID != nil {
		query += ` AND p.region_id = $3`
		args = append(args, *regionID)
	}
	query += ` ORDER BY p.region_id, p.trained_through`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list predictors with observations", err)
	}
	defer rows.Close()

	var predictors []*types.Predictor
	for rows.Next() {
		p, err := scanPredictor(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan predictor", err)
		}
		predictors = append(predictors, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating predictors", err)
	}
	return predictors, nil
}
