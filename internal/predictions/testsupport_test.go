package predictions

import (
	"context"
	"time"

	"driftwatch/internal/forecast"
	"driftwatch/internal/types"
)

// --- Shared test doubles for the lifecycle interfaces ---

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func f(v float64) *float64 { return &v }

type attachCall struct {
	observationID string
	predictorID   string
}

type updateCall struct {
	observationID string
	predicted     float64
	lower         float64
	upper         float64
}

type fakeObservations struct {
	byID    map[string]*types.Observation
	history []types.HistoryPoint
	listed  []*types.Observation

	attaches    []attachCall
	updates     []updateCall
	bulkUpdates [][]types.PredictionUpdate
	bulkChunk   int

	// events, when shared with other fakes, records write ordering across
	// collaborators.
	events *[]string

	err error
}

func (s *fakeObservations) GetByID(_ context.Context, id string) (*types.Observation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byID[id], nil
}

func (s *fakeObservations) HistoryForRegion(_ context.Context, _ string, _ time.Time) ([]types.HistoryPoint, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.history, nil
}

func (s *fakeObservations) AttachPredictor(_ context.Context, observationID, predictorID string) error {
	s.attaches = append(s.attaches, attachCall{observationID, predictorID})
	return nil
}

func (s *fakeObservations) UpdatePrediction(_ context.Context, obs *types.Observation, predicted, lower, upper float64) error {
	s.updates = append(s.updates, updateCall{obs.ID, predicted, lower, upper})
	if s.events != nil {
		*s.events = append(*s.events, "prediction_written")
	}
	return nil
}

func (s *fakeObservations) ListByPredictorInRange(_ context.Context, _ string, _, _ time.Time) ([]*types.Observation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.listed, nil
}

func (s *fakeObservations) BulkUpdatePredictions(_ context.Context, updates []types.PredictionUpdate, chunkSize int) (int, error) {
	s.bulkUpdates = append(s.bulkUpdates, updates)
	s.bulkChunk = chunkSize
	return len(updates), nil
}

type createCall struct {
	regionID       string
	trainedThrough time.Time
}

type saveCall struct {
	predictorID string
	weights     []byte
}

type fakePredictors struct {
	byID map[string]*types.Predictor

	// notExpired is popped once per GetNotExpired call; exhaustion yields nil.
	notExpired []*types.Predictor

	createResult *types.Predictor
	createErr    error
	created      []createCall

	saved []saveCall
	list  []*types.Predictor
}

func (s *fakePredictors) GetByID(_ context.Context, id string) (*types.Predictor, error) {
	return s.byID[id], nil
}

func (s *fakePredictors) GetNotExpired(_ context.Context, _ string, _ time.Time) (*types.Predictor, error) {
	if len(s.notExpired) == 0 {
		return nil, nil
	}
	p := s.notExpired[0]
	s.notExpired = s.notExpired[1:]
	return p, nil
}

func (s *fakePredictors) Create(_ context.Context, regionID string, trainedThrough time.Time) (*types.Predictor, error) {
	s.created = append(s.created, createCall{regionID, trainedThrough})
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.createResult, nil
}

func (s *fakePredictors) SaveTraining(_ context.Context, id string, weights []byte, _, _ []float64) error {
	s.saved = append(s.saved, saveCall{id, weights})
	return nil
}

func (s *fakePredictors) ListWithObservationsInRange(_ context.Context, _ *string, _, _ time.Time) ([]*types.Predictor, error) {
	return s.list, nil
}

type fakeProgress struct {
	refreshed []time.Time
	events    *[]string
	err       error
}

func (s *fakeProgress) Refresh(_ context.Context, date time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.refreshed = append(s.refreshed, date)
	if s.events != nil {
		*s.events = append(*s.events, "progress_refreshed")
	}
	return nil
}

// fakeEngine is a deterministic stand-in for the fitting engine. Train
// records its input and returns a fixed weight blob; Predict yields a fixed
// band per requested date.
type fakeEngine struct {
	trainedPoints [][]forecast.TrainingPoint
	trainErr      error

	predictedWith [][]byte
	predictErr    error
	predictEmpty  bool
}

func (e *fakeEngine) Train(points []forecast.TrainingPoint) (*forecast.TrainResult, error) {
	e.trainedPoints = append(e.trainedPoints, points)
	if e.trainErr != nil {
		return nil, e.trainErr
	}
	return &forecast.TrainResult{
		Weights:           []byte("weights-v1"),
		Trend:             make([]float64, len(points)),
		YearlySeasonality: make([]float64, types.SeasonalityCurveLen),
	}, nil
}

func (e *fakeEngine) Predict(weights []byte, dates []time.Time) ([]forecast.Forecast, error) {
	e.predictedWith = append(e.predictedWith, weights)
	if e.predictErr != nil {
		return nil, e.predictErr
	}
	if e.predictEmpty {
		return nil, nil
	}
	forecasts := make([]forecast.Forecast, len(dates))
	for i, d := range dates {
		forecasts[i] = forecast.Forecast{Date: d, Predicted: 0.5, Lower: 0.3, Upper: 0.7}
	}
	return forecasts, nil
}

type fakeDispatcher struct {
	tasks []types.PredictionTask
	err   error
}

func (d *fakeDispatcher) PublishTask(_ context.Context, task types.PredictionTask, _ string) error {
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, task)
	return nil
}

// trainableHistory builds a non-null, non-zero daily series long enough to
// pass history preparation, ending the day before `end`.
func trainableHistory(end time.Time, n int) []types.HistoryPoint {
	history := make([]types.HistoryPoint, n)
	for i := range history {
		history[i] = types.HistoryPoint{
			Date:  end.AddDate(0, 0, i-n),
			Value: f(0.5),
		}
	}
	return history
}
