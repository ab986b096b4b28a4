// Package ingest processes inbound measurement batches: validating records,
// resolving region codes, creating observations, and enqueueing prediction
// refreshes for the new rows.
package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"driftwatch/internal/types"
)

// RegionStore resolves external region codes. *db.RegionRepository satisfies
// it.
type RegionStore interface {
	GetByCode(ctx context.Context, code string) (*types.Region, error)
}

// ObservationWriter creates observation rows. *db.ObservationRepository
// satisfies it.
type ObservationWriter interface {
	Create(ctx context.Context, obs *types.Observation) error
}

// RefreshDispatcher enqueues per-observation prediction refreshes.
// *queue.TaskPublisher satisfies it.
type RefreshDispatcher interface {
	PublishRefresh(ctx context.Context, observationID string, refreshProgress bool, reason string) error
}

// Service ingests measurement batches. Record-level problems (malformed
// records, unknown region codes, duplicate dates) are counted and skipped,
// never fatal to the batch; only infrastructure failures abort processing.
type Service struct {
	Log          *slog.Logger
	Regions      RegionStore
	Observations ObservationWriter
	Dispatcher   RefreshDispatcher

	validate *validator.Validate
}

// NewService creates an ingestion service with a fresh validator instance.
func NewService(log *slog.Logger, regions RegionStore, observations ObservationWriter, dispatcher RefreshDispatcher) *Service {
	return &Service{
		Log:          log,
		Regions:      regions,
		Observations: observations,
		Dispatcher:   dispatcher,
		validate:     validator.New(),
	}
}

// ProcessBatch ingests one batch. Each created observation gets a refresh
// task with progress refreshing enabled: the date's success fraction must be
// recounted after the prediction lands, not here, where every new row's
// prediction is still null.
func (s *Service) ProcessBatch(ctx context.Context, batch types.IngestBatch) (*types.IngestSummary, error) {
	summary := &types.IngestSummary{}

	// Region codes repeat heavily within a batch; cache lookups per batch.
	regions := make(map[string]*types.Region)

	for _, record := range batch.Records {
		if err := s.validate.Struct(record); err != nil {
			summary.SkippedInvalid++
			s.Log.WarnContext(ctx, "skipping malformed ingest record",
				"batch_id", batch.BatchID,
				"region_code", record.RegionCode,
				"error", err,
			)
			continue
		}

		region, cached := regions[record.RegionCode]
		if !cached {
			var err error
			region, err = s.Regions.GetByCode(ctx, record.RegionCode)
			if err != nil {
				return summary, err
			}
			regions[record.RegionCode] = region
		}
		if region == nil {
			summary.SkippedUnknown++
			s.Log.WarnContext(ctx, "skipping record for unknown region",
				"batch_id", batch.BatchID,
				"region_code", record.RegionCode,
			)
			continue
		}

		obs := &types.Observation{
			RegionID: region.ID,
			Date:     types.DateOnly(record.Date),
			Value:    record.Value,
		}
		if err := s.Observations.Create(ctx, obs); err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictObservation {
				summary.SkippedDup++
				continue
			}
			return summary, err
		}
		summary.Created++

		if err := s.Dispatcher.PublishRefresh(ctx, obs.ID, true, "observation_created"); err != nil {
			return summary, err
		}
	}

	s.Log.InfoContext(ctx, "ingest batch processed",
		"batch_id", batch.BatchID,
		"trace_id", batch.TraceID,
		"created", summary.Created,
		"skipped_unknown", summary.SkippedUnknown,
		"skipped_invalid", summary.SkippedInvalid,
		"skipped_duplicate", summary.SkippedDup,
	)
	return summary, nil
}
