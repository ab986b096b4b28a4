// Package predictions implements the prediction lifecycle: resolving or
// creating the predictor that owns an observation, training it lazily on
// first use, producing forecasts, and maintaining per-date progress records.
//
// All entry points are invoked from SQS workers and are idempotent: the
// fitting engine is deterministic and every write is a plain overwrite, so
// at-least-once delivery and retries are safe.
package predictions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"driftwatch/internal/forecast"
	"driftwatch/internal/types"
)

// ObservationStore is the observation persistence surface the lifecycle code
// depends on. *db.ObservationRepository satisfies it.
type ObservationStore interface {
	GetByID(ctx context.Context, id string) (*types.Observation, error)
	HistoryForRegion(ctx context.Context, regionID string, before time.Time) ([]types.HistoryPoint, error)
	AttachPredictor(ctx context.Context, observationID, predictorID string) error
	UpdatePrediction(ctx context.Context, obs *types.Observation, predicted, lower, upper float64) error
	ListByPredictorInRange(ctx context.Context, predictorID string, from, to time.Time) ([]*types.Observation, error)
	BulkUpdatePredictions(ctx context.Context, updates []types.PredictionUpdate, chunkSize int) (int, error)
}

// PredictorStore is the predictor persistence surface. *db.PredictorRepository
// satisfies it.
type PredictorStore interface {
	GetByID(ctx context.Context, id string) (*types.Predictor, error)
	GetNotExpired(ctx context.Context, regionID string, asOf time.Time) (*types.Predictor, error)
	Create(ctx context.Context, regionID string, trainedThrough time.Time) (*types.Predictor, error)
	SaveTraining(ctx context.Context, id string, weights []byte, seasonality, trend []float64) error
	ListWithObservationsInRange(ctx context.Context, regionID *string, from, to time.Time) ([]*types.Predictor, error)
}

// ProgressStore maintains per-date prediction progress records.
// *db.ProgressRepository satisfies it.
type ProgressStore interface {
	Refresh(ctx context.Context, date time.Time) error
}

// Metrics receives telemetry from the lifecycle code. Publish failures are
// logged and never fail a task.
type Metrics interface {
	PublishTrainingDuration(ctx context.Context, regionID string, d time.Duration) error
	PublishBatchStats(ctx context.Context, predictorID string, observations, updated int) error
}

// Service orchestrates single-observation prediction refreshes and the shared
// predictor resolution and training logic.
type Service struct {
	Log          *slog.Logger
	Observations ObservationStore
	Predictors   PredictorStore
	Progress     ProgressStore
	Engine       forecast.Engine
	Metrics      Metrics
}

// RefreshObservation handles one refresh task: resolve the observation's
// predictor (creating and training one if needed), forecast the observation's
// date, and persist the prediction with its recomputed anomaly degree.
//
// Soft outcomes return nil without writing a prediction:
//   - the observation was deleted between enqueue and execution;
//   - the region does not yet have enough usable history to train.
//
// When task.RefreshProgress is set, the date's progress record is recomputed
// even on a soft outcome, so ingestion of sparse regions still settles the
// date's success fraction.
func (s *Service) RefreshObservation(ctx context.Context, task types.PredictionTask) error {
	obs, err := s.Observations.GetByID(ctx, task.ObservationID)
	if err != nil {
		return err
	}
	if obs == nil {
		s.Log.InfoContext(ctx, "observation gone, skipping refresh",
			"observation_id", task.ObservationID,
			"trace_id", task.TraceID,
		)
		return nil
	}

	predictor, err := s.resolvePredictor(ctx, obs)
	if err != nil {
		return err
	}

	trained, err := s.ensureTrained(ctx, predictor)
	if err != nil {
		return err
	}

	if trained {
		forecasts, err := s.Engine.Predict(predictor.Weights, []time.Time{obs.Date})
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalForecast, "failed to predict observation", err)
		}
		if len(forecasts) == 0 {
			s.Log.WarnContext(ctx, "engine returned no forecast, prediction stays null",
				"observation_id", obs.ID,
				"predictor_id", predictor.ID,
				"trace_id", task.TraceID,
			)
		} else {
			fc := forecasts[0]
			if err := s.Observations.UpdatePrediction(ctx, obs, fc.Predicted, fc.Lower, fc.Upper); err != nil {
				return err
			}
		}
	} else {
		s.Log.InfoContext(ctx, "insufficient history, prediction stays null",
			"observation_id", obs.ID,
			"region_id", obs.RegionID,
			"trace_id", task.TraceID,
		)
	}

	if task.RefreshProgress {
		if err := s.Progress.Refresh(ctx, obs.Date); err != nil {
			return err
		}
	}
	return nil
}

// RetrainPredictor forces a fresh fit of an existing predictor from the
// current history, overwriting its weights and derived curves. A predictor
// that has gone missing is a silent no-op; insufficient history is an error
// here, because a forced retrain of a predictor that once trained implies the
// history has since been corrupted.
func (s *Service) RetrainPredictor(ctx context.Context, predictorID string) error {
	predictor, err := s.Predictors.GetByID(ctx, predictorID)
	if err != nil {
		return err
	}
	if predictor == nil {
		s.Log.InfoContext(ctx, "predictor gone, skipping retrain", "predictor_id", predictorID)
		return nil
	}

	trained, err := s.train(ctx, predictor)
	if err != nil {
		return err
	}
	if !trained {
		return types.NewAppError(types.ErrCodeInternalForecast,
			"cannot retrain predictor: insufficient usable history", nil)
	}
	return nil
}

// resolvePredictor returns the predictor owning the observation, creating one
// when no unexpired predictor covers the observation's date. Creation races
// between concurrent workers are resolved through the unique constraint: the
// loser's insert fails with a conflict and it re-reads the winner.
func (s *Service) resolvePredictor(ctx context.Context, obs *types.Observation) (*types.Predictor, error) {
	predictor, err := s.Predictors.GetNotExpired(ctx, obs.RegionID, obs.Date)
	if err != nil {
		return nil, err
	}

	if predictor == nil {
		predictor, err = s.Predictors.Create(ctx, obs.RegionID, obs.Date)
		if err != nil {
			var appErr *types.AppError
			if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeConflictPredictor {
				return nil, err
			}
			// Lost the creation race; the winner's row is now visible.
			predictor, err = s.Predictors.GetNotExpired(ctx, obs.RegionID, obs.Date)
			if err != nil {
				return nil, err
			}
			if predictor == nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB,
					"predictor conflict but no visible predictor on re-read", nil)
			}
		}
	}

	if obs.PredictorID == nil || *obs.PredictorID != predictor.ID {
		if err := s.Observations.AttachPredictor(ctx, obs.ID, predictor.ID); err != nil {
			return nil, err
		}
		obs.PredictorID = &predictor.ID
	}
	return predictor, nil
}

// ensureTrained trains the predictor if it does not carry weights yet.
// Returns false without error on insufficient history (the soft "not enough
// data" outcome).
func (s *Service) ensureTrained(ctx context.Context, predictor *types.Predictor) (bool, error) {
	if predictor.IsTrained() {
		return true, nil
	}
	return s.train(ctx, predictor)
}

// train fits the predictor from history dated strictly before its
// trained-through date and persists the result. Returns false when the region
// lacks enough usable history.
func (s *Service) train(ctx context.Context, predictor *types.Predictor) (bool, error) {
	history, err := s.Observations.HistoryForRegion(ctx, predictor.RegionID, predictor.TrainedThrough)
	if err != nil {
		return false, err
	}

	points := forecast.PrepareHistory(history, predictor.TrainedThrough)
	if points == nil {
		return false, nil
	}

	start := time.Now()
	result, err := s.Engine.Train(points)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalForecast, "failed to train predictor", err)
	}
	elapsed := time.Since(start)

	if err := s.Predictors.SaveTraining(ctx, predictor.ID, result.Weights, result.YearlySeasonality, result.Trend); err != nil {
		return false, err
	}
	predictor.Weights = result.Weights
	predictor.YearlySeasonality = result.YearlySeasonality
	predictor.Trend = result.Trend

	s.Log.InfoContext(ctx, "predictor trained",
		"predictor_id", predictor.ID,
		"region_id", predictor.RegionID,
		"trained_through", predictor.TrainedThrough.Format(time.DateOnly),
		"training_points", len(points),
		"duration_ms", elapsed.Milliseconds(),
	)

	if s.Metrics != nil {
		if err := s.Metrics.PublishTrainingDuration(ctx, predictor.RegionID, elapsed); err != nil {
			s.Log.WarnContext(ctx, "failed to publish training duration metric",
				"error", err,
				"region_id", predictor.RegionID,
			)
			// Non-fatal: do not fail the task for a metric publish error
		}
	}
	return true, nil
}
