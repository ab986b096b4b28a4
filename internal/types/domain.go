// Package types defines the domain entities, task envelopes, and error types
// shared across the driftwatch engine. It is intentionally dependency-free so
// every other package can import it without cycles.
package types

import (
	"time"
)

// Predictor lifecycle constants. A predictor trained through day D is valid
// for any observation dated within the following ExpiryDays; the seasonal
// model needs roughly two full yearly cycles of usable history before a fit
// is statistically meaningful.
const (
	PredictorExpiryDays     = 30
	MinTrainingObservations = 365 * 2
)

// SeasonalityCurveLen is the length of the derived yearly seasonality curve:
// one value per day-of-year, sampled against a canonical non-leap year.
const SeasonalityCurveLen = 365

// Region is an opaque geographic unit owning its own independent time series
// and predictor. The GIS hierarchy behind it is external to this engine; only
// the identifier and ingestion code are consumed here.
type Region struct {
	ID   string `json:"id" db:"id"`
	Code string `json:"code" db:"code"`
	Name string `json:"name" db:"name"`
}

// Predictor is the trained seasonal bounded-growth regression artifact for one
// region. It is created empty (untrained), trained synchronously on first use
// when enough history exists, and immutable afterwards except for forced
// retraining. At most one predictor exists per (region, trained-through date).
type Predictor struct {
	ID       string `json:"id" db:"id"`
	RegionID string `json:"region_id" db:"region_id"`

	// TrainedThrough is the date through which training data was included.
	// Training input is filtered to strictly before this date.
	TrainedThrough time.Time `json:"trained_through" db:"trained_through"`

	// Weights is the serialized model blob (zstd-compressed JSON). Nil until
	// the predictor has been trained.
	Weights []byte `json:"-" db:"weights"`

	// YearlySeasonality holds 365 values, one per day-of-year, in the model's
	// additive space. Nil until trained.
	YearlySeasonality []float64 `json:"yearly_seasonality,omitempty" db:"yearly_seasonality"`

	// Trend is the in-sample trend curve aligned to the historical training
	// dates. Nil until trained.
	Trend []float64 `json:"trend,omitempty" db:"trend"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsTrained reports whether the predictor carries a trained weight set.
func (p *Predictor) IsTrained() bool {
	return len(p.Weights) > 0
}

// ExpiryWindowStart returns the earliest trained-through date still considered
// valid for an observation dated asOf. Both ends of the window are inclusive.
func ExpiryWindowStart(asOf time.Time) time.Time {
	return asOf.AddDate(0, 0, -PredictorExpiryDays)
}

// Observation is one (region, date) scalar measurement, optionally annotated
// with a forecast. (RegionID, Date) is unique. Value and all prediction fields
// are nullable; AnomalyDegree is a persisted cache of a pure function of
// (Value, LowerValue, UpperValue) and is never independently settable.
type Observation struct {
	ID          string  `json:"id" db:"id"`
	RegionID    string  `json:"region_id" db:"region_id"`
	PredictorID *string `json:"predictor_id,omitempty" db:"predictor_id"`

	Date  time.Time `json:"date" db:"date"`
	Value *float64  `json:"value" db:"value"`

	PredictedValue *float64 `json:"predicted_value" db:"predicted_value"`
	LowerValue     *float64 `json:"lower_value" db:"lower_value"`
	UpperValue     *float64 `json:"upper_value" db:"upper_value"`
	AnomalyDegree  *float64 `json:"anomaly_degree" db:"anomaly_degree"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HistoryPoint is a single (date, value) pair from the observation store,
// ordered by date when delivered as a slice. It is the training input shape.
type HistoryPoint struct {
	Date  time.Time
	Value *float64
}

// PredictionProgress tracks, per date, the fraction of that day's observations
// carrying a non-null prediction. It is recomputed wholesale, never
// incrementally updated.
type PredictionProgress struct {
	ID              string    `json:"id" db:"id"`
	Date            time.Time `json:"date" db:"date"`
	SuccessFraction float64   `json:"success_fraction" db:"success_fraction"`
}

// ReliableFractionThreshold is the success fraction at or above which a date
// is considered fully predicted by downstream consumers.
const ReliableFractionThreshold = 0.95

// PredictionUpdate carries the recomputed forecast fields for one observation
// during a bulk batch update. Value is the observation's current measured
// value; the write path needs it to recompute the anomaly degree.
type PredictionUpdate struct {
	ObservationID  string
	Value          *float64
	PredictedValue float64
	LowerValue     float64
	UpperValue     float64
}
