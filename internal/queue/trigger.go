// Package queue provides SQS-based message producers for dispatching
// prediction tasks and ingestion batches to downstream workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"driftwatch/internal/config"
	"driftwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// TaskPublisher serializes PredictionTask envelopes and dispatches them to the
// prediction task queue. A circuit breaker guards the SQS endpoint so a
// regional outage fails fast instead of stalling every Lambda invocation on
// retries.
type TaskPublisher struct {
	client   SQSSender
	queueURL string
	breaker  *gobreaker.CircuitBreaker[*sqs.SendMessageOutput]
	logger   *slog.Logger
}

// NewTaskPublisher creates a TaskPublisher reading the task queue URL from the
// AWS configuration.
func NewTaskPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *TaskPublisher {
	cb := gobreaker.NewCircuitBreaker[*sqs.SendMessageOutput](gobreaker.Settings{
		Name:        "sqs-prediction-tasks",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &TaskPublisher{
		client:   client,
		queueURL: awsCfg.TaskQueueURL,
		breaker:  cb,
		logger:   logger,
	}
}

// PublishRefresh enqueues a refresh task for one observation. refreshProgress
// controls whether the worker also recomputes the date's progress record once
// the prediction is persisted; ingestion passes true so the date's success
// fraction tracks the predictions as they land.
func (p *TaskPublisher) PublishRefresh(ctx context.Context, observationID string, refreshProgress bool, reason string) error {
	task := types.PredictionTask{
		TaskID:          uuid.New().String(),
		TraceID:         uuid.New().String(),
		Action:          types.TaskActionRefresh,
		ObservationID:   observationID,
		RefreshProgress: refreshProgress,
	}
	return p.publish(ctx, task, reason)
}

// PublishTask enqueues an already constructed task, filling in identifiers if
// the caller left them empty. The batch scan handler uses this to fan out
// per-predictor tasks under the scan's trace; the batch-runner CLI uses it to
// enqueue the scan itself.
func (p *TaskPublisher) PublishTask(ctx context.Context, task types.PredictionTask, reason string) error {
	if task.TaskID == "" {
		task.TaskID = uuid.New().String()
	}
	if task.TraceID == "" {
		task.TraceID = uuid.New().String()
	}
	return p.publish(ctx, task, reason)
}

// publish serializes the task to JSON and dispatches it through the circuit
// breaker.
func (p *TaskPublisher) publish(ctx context.Context, task types.PredictionTask, reason string) error {
	body, err := json.Marshal(task)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "failed to marshal prediction task", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	_, err = p.breaker.Execute(func() (*sqs.SendMessageOutput, error) {
		return p.client.SendMessage(ctx, input)
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send prediction task to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "prediction task sent",
		"queue_url", p.queueURL,
		"task_id", task.TaskID,
		"trace_id", task.TraceID,
		"action", string(task.Action),
		"reason", reason,
	)

	return nil
}
