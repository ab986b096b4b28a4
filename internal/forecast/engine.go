// Package forecast implements training and inference for the per-region
// seasonal bounded-growth model. The fitting routine sits behind the narrow
// Engine interface so the production implementation can be swapped for a
// deterministic fake in tests, and so a replacement fitting library never
// leaks past this package.
package forecast

import (
	"time"

	"driftwatch/internal/types"
)

// TrainingPoint is one usable (date, value) pair after history preparation.
// Values are non-null and the slice is ordered by date.
type TrainingPoint struct {
	Date  time.Time
	Value float64
}

// Forecast is a single predicted point with its confidence band. Dates may be
// past (backfill), present, or future: the fitted model is a smooth
// continuous-time curve, not limited to the training range.
type Forecast struct {
	Date      time.Time
	Predicted float64
	Lower     float64
	Upper     float64
}

// TrainResult carries everything a successful fit persists: the portable
// weight blob, the in-sample trend curve aligned to the training dates, and
// the 365-point yearly seasonality curve.
type TrainResult struct {
	Weights           []byte
	Trend             []float64
	YearlySeasonality []float64
}

// Engine is the seam between the lifecycle code and the statistical fitting
// routine. Implementations must be deterministic: identical inputs always
// yield identical weights, and Predict never uses randomness.
type Engine interface {
	// Train fits the model to prepared history. The input is assumed to have
	// passed PrepareHistory; Train errors only on numeric failure, never on
	// insufficient data.
	Train(points []TrainingPoint) (*TrainResult, error)

	// Predict produces one forecast per input date from a serialized weight
	// blob.
	Predict(weights []byte, dates []time.Time) ([]Forecast, error)
}

// PrepareHistory filters raw history into trainable points, applying the
// eligibility rules in one place:
//
//   - only observations dated strictly before referenceDate are used;
//   - leading records before the first non-zero, non-null value are masked
//     (a flat zero prefix biases the bounded-growth fit toward a floor
//     plateau); interior zeros are kept as real measurements;
//   - null values are dropped throughout.
//
// Returns nil when the series is untrainable: no data, all values null, all
// values zero, or fewer than types.MinTrainingObservations usable points
// remain after trimming. Callers treat nil as the soft "not enough history"
// outcome, never as an error.
func PrepareHistory(history []types.HistoryPoint, referenceDate time.Time) []TrainingPoint {
	ref := types.DateOnly(referenceDate)

	firstUsable := -1
	for i, p := range history {
		if !types.DateOnly(p.Date).Before(ref) {
			break
		}
		if p.Value != nil && *p.Value != 0 {
			firstUsable = i
			break
		}
	}
	if firstUsable < 0 {
		return nil
	}

	points := make([]TrainingPoint, 0, len(history)-firstUsable)
	for _, p := range history[firstUsable:] {
		if !types.DateOnly(p.Date).Before(ref) {
			break
		}
		if p.Value == nil {
			continue
		}
		points = append(points, TrainingPoint{Date: types.DateOnly(p.Date), Value: *p.Value})
	}

	if len(points) < types.MinTrainingObservations {
		return nil
	}
	return points
}
