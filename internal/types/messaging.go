package types

import "time"

// TaskAction identifies the unit of work carried by a PredictionTask.
type TaskAction string

const (
	// TaskActionRefresh predicts a single newly written observation.
	TaskActionRefresh TaskAction = "refresh"

	// TaskActionBatchScan enumerates predictors owning observations in a date
	// window and fans out one batch_predictor task per predictor.
	TaskActionBatchScan TaskAction = "batch_scan"

	// TaskActionBatchPredictor re-predicts every observation owned by one
	// predictor inside a date window.
	TaskActionBatchPredictor TaskAction = "batch_predictor"
)

// PredictionTask is the SQS envelope for all prediction work units. Tasks are
// independent and idempotent: prediction is deterministic for a fixed weight
// set and updates are plain overwrites, so SQS at-least-once delivery and
// retries are safe.
type PredictionTask struct {
	TaskID  string     `json:"task_id"`
	TraceID string     `json:"trace_id"`
	Action  TaskAction `json:"action"`

	// refresh
	ObservationID string `json:"observation_id,omitempty"`
	// RefreshProgress controls whether the refresh recomputes the date's
	// progress record after the prediction write. Ingestion sets it true;
	// batch range updates manage progress themselves and set it false.
	RefreshProgress bool `json:"refresh_progress,omitempty"`

	// batch_scan
	RegionID *string `json:"region_id,omitempty"`

	// batch_scan and batch_predictor
	PredictorID string    `json:"predictor_id,omitempty"`
	FromDate    time.Time `json:"from_date,omitempty"`
	ToDate      time.Time `json:"to_date,omitempty"`
}

// IngestRecord is one (region code, date, value) triple delivered by the
// ingestion boundary. Value is nil for a missing measurement.
type IngestRecord struct {
	RegionCode string    `json:"region_code" validate:"required"`
	Date       time.Time `json:"date" validate:"required"`
	Value      *float64  `json:"value"`
}

// IngestBatch is the SQS envelope for an ingestion batch.
type IngestBatch struct {
	BatchID string         `json:"batch_id"`
	TraceID string         `json:"trace_id"`
	Records []IngestRecord `json:"records"`
}

// IngestSummary reports the outcome of one ingestion batch. Malformed records
// and unknown region codes are skipped, never fatal to the batch.
type IngestSummary struct {
	Created        int `json:"created"`
	SkippedUnknown int `json:"skipped_unknown_region"`
	SkippedInvalid int `json:"skipped_invalid"`
	SkippedDup     int `json:"skipped_duplicate"`
}
