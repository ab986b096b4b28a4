// Package metrics emits pipeline telemetry to AWS CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"driftwatch/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability. Production code uses the *cloudwatch.Client from aws-sdk-go-v2.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names.
const (
	MetricTaskOutcome      = "PredictionTaskOutcome"
	MetricTrainingDuration = "PredictorTrainingDuration"
	MetricBatchSize        = "BatchObservations"
	MetricBatchUpdated     = "BatchUpdatedObservations"
	MetricQueueLag         = "TaskQueueLag"

	DimAction = "Action"
	DimResult = "Result"
)

// TaskMetrics publishes prediction-pipeline metrics to CloudWatch. It
// satisfies the predictions.Metrics interface. Callers treat publish failures
// as non-fatal; this type only reports them.
type TaskMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewTaskMetrics creates a TaskMetrics publishing to the given namespace.
func NewTaskMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *TaskMetrics {
	return &TaskMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// PublishTaskOutcome emits one task outcome count with Action and Result
// dimensions. Result is "success" or "failure".
func (m *TaskMetrics) PublishTaskOutcome(ctx context.Context, action types.TaskAction, result string) error {
	return m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricTaskOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimAction), Value: aws.String(string(action))},
			{Name: aws.String(DimResult), Value: aws.String(result)},
		},
	})
}

// PublishTrainingDuration emits the wall time of one model fit. Region is
// deliberately not a dimension; per-region training metrics would explode
// cardinality, so the region travels in logs instead.
func (m *TaskMetrics) PublishTrainingDuration(ctx context.Context, regionID string, d time.Duration) error {
	_ = regionID
	return m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricTrainingDuration),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

// PublishBatchStats emits the size and write count of one batch predictor
// run.
func (m *TaskMetrics) PublishBatchStats(ctx context.Context, predictorID string, observations, updated int) error {
	_ = predictorID
	return m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricBatchSize),
		Value:      aws.Float64(float64(observations)),
		Unit:       cwtypes.StandardUnitCount,
	}, cwtypes.MetricDatum{
		MetricName: aws.String(MetricBatchUpdated),
		Value:      aws.Float64(float64(updated)),
		Unit:       cwtypes.StandardUnitCount,
	})
}

// PublishQueueLag emits the delay between task enqueue and worker processing
// start, including SQS backlog and visibility timeouts.
func (m *TaskMetrics) PublishQueueLag(ctx context.Context, lag time.Duration) error {
	return m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

func (m *TaskMetrics) put(ctx context.Context, data ...cwtypes.MetricDatum) error {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to publish metrics",
			"error", err,
			"namespace", m.namespace,
		)
		return types.NewAppError(types.ErrCodeUpstreamMetrics, "failed to publish metrics", err)
	}
	return nil
}
