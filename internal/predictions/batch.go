package predictions

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"driftwatch/internal/types"
)

// TaskDispatcher enqueues prediction tasks for downstream workers.
// *queue.TaskPublisher satisfies it.
type TaskDispatcher interface {
	PublishTask(ctx context.Context, task types.PredictionTask, reason string) error
}

// Orchestrator handles the batch half of the pipeline: scanning a date window
// into per-predictor tasks and re-predicting every observation one predictor
// owns inside a window.
type Orchestrator struct {
	Service    *Service
	Dispatcher TaskDispatcher

	// UpdateChunkSize bounds the bulk update transaction size; zero uses the
	// repository default.
	UpdateChunkSize int

	// FanoutConcurrency bounds parallel SQS enqueues during scans.
	FanoutConcurrency int
}

// defaultFanoutConcurrency bounds scan fan-out when the orchestrator is built
// without explicit tuning.
const defaultFanoutConcurrency = 8

// ScanAndDispatch enumerates the predictors owning at least one observation
// dated within the task's window and enqueues one batch_predictor task per
// predictor, all under the scan's trace. A nil region scans everything.
//
// Enqueue failures propagate: the scan task is retried by SQS and re-running
// it is safe, because per-predictor tasks are idempotent.
func (o *Orchestrator) ScanAndDispatch(ctx context.Context, task types.PredictionTask) error {
	predictors, err := o.Service.Predictors.ListWithObservationsInRange(ctx, task.RegionID, task.FromDate, task.ToDate)
	if err != nil {
		return err
	}

	log := o.Service.Log
	if len(predictors) == 0 {
		log.InfoContext(ctx, "batch scan matched no predictors",
			"trace_id", task.TraceID,
			"from", task.FromDate.Format(time.DateOnly),
			"to", task.ToDate.Format(time.DateOnly),
		)
		return nil
	}

	limit := o.FanoutConcurrency
	if limit <= 0 {
		limit = defaultFanoutConcurrency
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, p := range predictors {
		p := p
		g.Go(func() error {
			return o.Dispatcher.PublishTask(gCtx, types.PredictionTask{
				TraceID:     task.TraceID,
				Action:      types.TaskActionBatchPredictor,
				PredictorID: p.ID,
				FromDate:    task.FromDate,
				ToDate:      task.ToDate,
			}, "batch_scan_fanout")
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.InfoContext(ctx, "batch scan dispatched",
		"trace_id", task.TraceID,
		"predictor_count", len(predictors),
		"from", task.FromDate.Format(time.DateOnly),
		"to", task.ToDate.Format(time.DateOnly),
	)
	return nil
}

// RunPredictor re-predicts every observation the task's predictor owns inside
// the window, writing the results in bounded chunks and refreshing the
// progress record of every touched date.
//
// A predictor deleted between enqueue and execution is a silent no-op. A
// predictor that still lacks enough history to train leaves predictions null
// but refreshes progress, so the dates settle rather than staying pending
// forever.
func (o *Orchestrator) RunPredictor(ctx context.Context, task types.PredictionTask) error {
	svc := o.Service

	predictor, err := svc.Predictors.GetByID(ctx, task.PredictorID)
	if err != nil {
		return err
	}
	if predictor == nil {
		svc.Log.InfoContext(ctx, "predictor gone, skipping batch task",
			"predictor_id", task.PredictorID,
			"trace_id", task.TraceID,
		)
		return nil
	}

	observations, err := svc.Observations.ListByPredictorInRange(ctx, task.PredictorID, task.FromDate, task.ToDate)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		return nil
	}

	trained, err := svc.ensureTrained(ctx, predictor)
	if err != nil {
		return err
	}

	updated := 0
	if trained {
		dates := make([]time.Time, len(observations))
		for i, obs := range observations {
			dates[i] = obs.Date
		}

		forecasts, err := svc.Engine.Predict(predictor.Weights, dates)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalForecast, "failed to predict batch", err)
		}

		byDate := make(map[time.Time]int, len(forecasts))
		for i, fc := range forecasts {
			byDate[types.DateOnly(fc.Date)] = i
		}

		updates := make([]types.PredictionUpdate, 0, len(observations))
		for _, obs := range observations {
			i, ok := byDate[obs.Date]
			if !ok {
				continue
			}
			updates = append(updates, types.PredictionUpdate{
				ObservationID:  obs.ID,
				Value:          obs.Value,
				PredictedValue: forecasts[i].Predicted,
				LowerValue:     forecasts[i].Lower,
				UpperValue:     forecasts[i].Upper,
			})
		}

		updated, err = svc.Observations.BulkUpdatePredictions(ctx, updates, o.UpdateChunkSize)
		if err != nil {
			return err
		}
	}

	svc.Log.InfoContext(ctx, "batch predictor processed",
		"predictor_id", predictor.ID,
		"trace_id", task.TraceID,
		"observations", len(observations),
		"updated", updated,
	)

	if svc.Metrics != nil {
		if err := svc.Metrics.PublishBatchStats(ctx, predictor.ID, len(observations), updated); err != nil {
			svc.Log.WarnContext(ctx, "failed to publish batch stats metric",
				"error", err,
				"predictor_id", predictor.ID,
			)
			// Non-fatal
		}
	}

	for _, date := range distinctDates(observations) {
		if err := svc.Progress.Refresh(ctx, date); err != nil {
			return err
		}
	}
	return nil
}

// distinctDates returns the unique observation dates in input order. The
// input is date-ordered, so consecutive duplicates are the only kind.
func distinctDates(observations []*types.Observation) []time.Time {
	var dates []time.Time
	for _, obs := range observations {
		if len(dates) == 0 || !types.SameDate(dates[len(dates)-1], obs.Date) {
			dates = append(dates, obs.Date)
		}
	}
	return dates
}
