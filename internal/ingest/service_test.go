package ingest

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftwatch/internal/types"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func f(v float64) *float64 { return &v }

type fakeRegions struct {
	byCode map[string]*types.Region
	calls  int
}

func (r *fakeRegions) GetByCode(_ context.Context, code string) (*types.Region, error) {
	r.calls++
	return r.byCode[code], nil
}

type fakeObservations struct {
	created   []*types.Observation
	conflicts map[string]bool // keyed by "regionID/date"
}

func (o *fakeObservations) Create(_ context.Context, obs *types.Observation) error {
	key := obs.RegionID + "/" + obs.Date.Format(time.DateOnly)
	if o.conflicts[key] {
		return types.NewAppError(types.ErrCodeConflictObservation, "observation already exists", nil)
	}
	obs.ID = "obs-" + key
	o.created = append(o.created, obs)
	return nil
}

type refreshCall struct {
	observationID   string
	refreshProgress bool
}

type fakeDispatcher struct {
	calls []refreshCall
	err   error
}

func (d *fakeDispatcher) PublishRefresh(_ context.Context, observationID string, refreshProgress bool, _ string) error {
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, refreshCall{observationID, refreshProgress})
	return nil
}

func newTestService(regions *fakeRegions, obs *fakeObservations, dispatcher *fakeDispatcher) *Service {
	return NewService(slog.Default(), regions, obs, dispatcher)
}

func TestProcessBatch_CreatesAndEnqueues(t *testing.T) {
	regions := &fakeRegions{byCode: map[string]*types.Region{
		"US-CA": {ID: "region-1", Code: "US-CA"},
	}}
	obs := &fakeObservations{}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(regions, obs, dispatcher)

	summary, err := svc.ProcessBatch(context.Background(), types.IngestBatch{
		BatchID: "batch-1",
		Records: []types.IngestRecord{
			{RegionCode: "US-CA", Date: day(2024, 5, 1), Value: f(0.4)},
			{RegionCode: "US-CA", Date: day(2024, 5, 2), Value: nil},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Created)
	require.Len(t, obs.created, 2)
	assert.Equal(t, "region-1", obs.created[0].RegionID)
	assert.Nil(t, obs.created[1].Value, "null measurements are ingested as null")

	require.Len(t, dispatcher.calls, 2)
	for _, call := range dispatcher.calls {
		assert.True(t, call.refreshProgress,
			"the worker recounts the date after persisting the prediction; counting here would freeze the fraction at zero")
	}
}

func TestProcessBatch_UnknownRegionSkipped(t *testing.T) {
	regions := &fakeRegions{byCode: map[string]*types.Region{}}
	obs := &fakeObservations{}
	svc := newTestService(regions, obs, &fakeDispatcher{})

	summary, err := svc.ProcessBatch(context.Background(), types.IngestBatch{
		Records: []types.IngestRecord{
			{RegionCode: "XX-ZZ", Date: day(2024, 5, 1), Value: f(0.4)},
		},
	})
	require.NoError(t, err, "an unknown region never fails the batch")

	assert.Equal(t, 1, summary.SkippedUnknown)
	assert.Zero(t, summary.Created)
	assert.Empty(t, obs.created)
}

func TestProcessBatch_MalformedRecordSkipped(t *testing.T) {
	regions := &fakeRegions{byCode: map[string]*types.Region{"US-CA": {ID: "region-1"}}}
	svc := newTestService(regions, &fakeObservations{}, &fakeDispatcher{})

	summary, err := svc.ProcessBatch(context.Background(), types.IngestBatch{
		Records: []types.IngestRecord{
			{RegionCode: "", Date: day(2024, 5, 1), Value: f(0.4)}, // missing region code
			{RegionCode: "US-CA", Value: f(0.4)},                  // missing date
			{RegionCode: "US-CA", Date: day(2024, 5, 1), Value: f(0.4)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SkippedInvalid)
	assert.Equal(t, 1, summary.Created)
}

func TestProcessBatch_DuplicateCountedNotFatal(t *testing.T) {
	regions := &fakeRegions{byCode: map[string]*types.Region{"US-CA": {ID: "region-1"}}}
	obs := &fakeObservations{conflicts: map[string]bool{
		"region-1/2024-05-01": true,
	}}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(regions, obs, dispatcher)

	summary, err := svc.ProcessBatch(context.Background(), types.IngestBatch{
		Records: []types.IngestRecord{
			{RegionCode: "US-CA", Date: day(2024, 5, 1), Value: f(0.4)},
			{RegionCode: "US-CA", Date: day(2024, 5, 2), Value: f(0.5)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SkippedDup)
	assert.Equal(t, 1, summary.Created)
	assert.Len(t, dispatcher.calls, 1, "no refresh for the duplicate")
}

func TestProcessBatch_CachesRegionLookups(t *testing.T) {
	regions := &fakeRegions{byCode: map[string]*types.Region{"US-CA": {ID: "region-1"}}}
	svc := newTestService(regions, &fakeObservations{}, &fakeDispatcher{})

	_, err := svc.ProcessBatch(context.Background(), types.IngestBatch{
		Records: []types.IngestRecord{
			{RegionCode: "US-CA", Date: day(2024, 5, 1), Value: f(0.1)},
			{RegionCode: "US-CA", Date: day(2024, 5, 2), Value: f(0.2)},
			{RegionCode: "US-CA", Date: day(2024, 5, 3), Value: f(0.3)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, regions.calls)
}

func TestProcessBatch_DispatchErrorAborts(t *testing.T) {
	regions := &fakeRegions{byCode: map[string]*types.Region{"US-CA": {ID: "region-1"}}}
	dispatcher := &fakeDispatcher{err: types.NewAppError(types.ErrCodeUpstreamQueue, "queue down", nil)}
	svc := newTestService(regions, &fakeObservations{}, dispatcher)

	_, err := svc.ProcessBatch(context.Background(), types.IngestBatch{
		Records: []types.IngestRecord{
			{RegionCode: "US-CA", Date: day(2024, 5, 1), Value: f(0.4)},
		},
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamQueue, appErr.Code)
}
