package db

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"driftwatch/internal/anomaly"
	"driftwatch/internal/types"
)

// DefaultUpdateChunkSize bounds transaction size and lock duration during
// bulk prediction updates.
const DefaultUpdateChunkSize = 2000

// ObservationRepository provides data access for the observations table.
//
// Every write path that touches value, lower_value, or upper_value recomputes
// anomaly_degree through the anomaly package before persisting; the stored
// column is a cache of that pure function, never an input.
type ObservationRepository struct {
	db DBTX
}

// NewObservationRepository creates a new ObservationRepository backed by the
// given database connection (pool or transaction).
func NewObservationRepository(db DBTX) *ObservationRepository {
	return &ObservationRepository{db: db}
}

const observationColumns = `id, region_id, predictor_id, date, value,
	predicted_value, lower_value, upper_value, anomaly_degree,
	created_at, updated_at`

// scanObservation scans a single observation row. Column order must match
// observationColumns.
func scanObservation(row pgx.Row) (*types.Observation, error) {
	var o types.Observation
	err := row.Scan(
		&o.ID,
		&o.RegionID,
		&o.PredictorID,
		&o.Date,
		&o.Value,
		&o.PredictedValue,
		&o.LowerValue,
		&o.UpperValue,
		&o.AnomalyDegree,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Date = types.DateOnly(o.Date)
	return &o, nil
}

// Create inserts a new observation. A NaN value is normalized to null before
// the write. Returns ErrCodeConflictObservation when (region, date) already
// exists.
func (r *ObservationRepository) Create(ctx context.Context, obs *types.Observation) error {
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	obs.Date = types.DateOnly(obs.Date)
	if obs.Value != nil && math.IsNaN(*obs.Value) {
		obs.Value = nil
	}
	obs.AnomalyDegree = anomaly.Degree(obs.Value, obs.PredictedValue, obs.LowerValue, obs.UpperValue)

	err := r.db.QueryRow(ctx,
		`INSERT INTO observations
		 (id, region_id, predictor_id, date, value,
		  predicted_value, lower_value, upper_value, anomaly_degree)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		obs.ID,
		obs.RegionID,
		obs.PredictorID,
		obs.Date,
		obs.Value,
		obs.PredictedValue,
		obs.LowerValue,
		obs.UpperValue,
		obs.AnomalyDegree,
	).Scan(&obs.CreatedAt, &obs.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictObservation, "observation already exists for region and date", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create observation", err)
	}
	return nil
}

// GetByID fetches an observation. Returns (nil, nil) when it does not exist;
// refresh tasks treat a deleted observation as a silent no-op.
func (r *ObservationRepository) GetByID(ctx context.Context, id string) (*types.Observation, error) {
	o, err := scanObservation(r.db.QueryRow(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get observation", err)
	}
	return o, nil
}

// HistoryForRegion returns the region's (date, value) pairs dated strictly
// before the given date, ordered by date ascending. This is the training
// input shape; the ordering is required by the fitting engine.
func (r *ObservationRepository) HistoryForRegion(ctx context.Context, regionID string, before time.Time) ([]types.HistoryPoint, error) {
	rows, err := r.db.Query(ctx,
		`SELECT date, value FROM observations
		 WHERE region_id = $1 AND date < $2
		 ORDER BY date`,
		regionID,
		types.DateOnly(before),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query region history", err)
	}
	defer rows.Close()

	var history []types.HistoryPoint
	for rows.Next() {
		var p types.HistoryPoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan history point", err)
		}
		p.Date = types.DateOnly(p.Date)
		history = append(history, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating region history", err)
	}
	return history, nil
}

// AttachPredictor sets the observation's predictor reference.
func (r *ObservationRepository) AttachPredictor(ctx context.Context, observationID, predictorID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE observations SET predictor_id = $2, updated_at = NOW() WHERE id = $1`,
		observationID,
		predictorID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to attach predictor", err)
	}
	return nil
}

// UpdatePrediction overwrites the observation's forecast fields and the
// recomputed anomaly degree. The update is a plain overwrite, so re-running
// a prediction task for the same observation is safe.
func (r *ObservationRepository) UpdatePrediction(ctx context.Context, obs *types.Observation, predicted, lower, upper float64) error {
	obs.PredictedValue = &predicted
	obs.LowerValue = &lower
	obs.UpperValue = &upper
	obs.AnomalyDegree = anomaly.Degree(obs.Value, obs.PredictedValue, obs.LowerValue, obs.UpperValue)

	_, err := r.db.Exec(ctx,
		`UPDATE observations
		 SET predicted_value = $2, lower_value = $3, upper_value = $4,
		     anomaly_degree = $5, updated_at = NOW()
		 WHERE id = $1`,
		obs.ID,
		obs.PredictedValue,
		obs.LowerValue,
		obs.UpperValue,
		obs.AnomalyDegree,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update prediction", err)
	}
	return nil
}

// ListByPredictorInRange returns the predictor's observations dated within
// [from, to], ordered by date.
func (r *ObservationRepository) ListByPredictorInRange(ctx context.Context, predictorID string, from, to time.Time) ([]*types.Observation, error) {
	return r.list(ctx,
		`SELECT `+observationColumns+` FROM observations
		 WHERE predictor_id = $1 AND date >= $2 AND date <= $3
		 ORDER BY date`,
		predictorID, types.DateOnly(from), types.DateOnly(to))
}

// ListByRegionInRange returns the region's observations dated within
// [from, to], ordered by date. This is the in-process query boundary for the
// surrounding application.
func (r *ObservationRepository) ListByRegionInRange(ctx context.Context, regionID string, from, to time.Time) ([]*types.Observation, error) {
	return r.list(ctx,
		`SELECT `+observationColumns+` FROM observations
		 WHERE region_id = $1 AND date >= $2 AND date <= $3
		 ORDER BY date`,
		regionID, types.DateOnly(from), types.DateOnly(to))
}

func (r *ObservationRepository) list(ctx context.Context, query string, args ...any) ([]*types.Observation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list observations", err)
	}
	defer rows.Close()

	var observations []*types.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan observation", err)
		}
		observations = append(observations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating observations", err)
	}
	return observations, nil
}

// BulkUpdatePredictions overwrites forecast fields for many observations,
// chunked to bound transaction size and lock duration. The anomaly degree is
// recomputed per row from the update's carried value. Returns the number of
// rows written.
func (r *ObservationRepository) BulkUpdatePredictions(ctx context.Context, updates []types.PredictionUpdate, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultUpdateChunkSize
	}

	written := 0
	for start := 0; start < len(updates); start += chunkSize {
		end := start + chunkSize
		if end > len(updates) {
			end = len(updates)
		}

		batch := &pgx.Batch{}
		for _, u := range updates[start:end] {
			degree := anomaly.Degree(u.Value, &u.PredictedValue, &u.LowerValue, &u.UpperValue)
			batch.Queue(
				`UPDATE observations
				 SET predicted_value = $2, lower_value = $3, upper_value = $4,
				     anomaly_degree = $5, updated_at = NOW()
				 WHERE id = $1`,
				u.ObservationID,
				u.PredictedValue,
				u.LowerValue,
				u.UpperValue,
				degree,
			)
		}

		results := r.db.SendBatch(ctx, batch)

		for range updates[start:end] {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return written, types.NewAppError(types.ErrCodeInternalDB, "failed to bulk update predictions", err)
			}
			written += int(tag.RowsAffected())
		}
		if err := results.Close(); err != nil {
			return written, types.NewAppError(types.ErrCodeInternalDB, "failed to close prediction update batch", err)
		}
	}
	return written, nil
}
