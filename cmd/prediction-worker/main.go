// Package main is the entrypoint for the Prediction Worker Lambda function.
//
// The Prediction Worker consumes PredictionTask messages from the task SQS
// queue and routes them by action:
//
//   - refresh:          predict one newly written observation, training its
//     region's predictor lazily when needed;
//   - batch_scan:       fan a date window out into per-predictor tasks;
//   - batch_predictor:  re-predict every observation one predictor owns
//     inside a window.
//
// Cold Start (main):
//  1. Load and validate configuration (fail fast).
//  2. Initialize the structured JSON logger.
//  3. Load AWS SDK configuration and build SQS and CloudWatch clients.
//  4. Open the pgx connection pool and verify connectivity.
//  5. Wire repositories, the fitting engine, the task publisher, and metrics.
//  6. Register the handler and call lambda.Start.
//
// The handler uses partial batch responses: messages that fail processing are
// returned in batchItemFailures so SQS retries only those. Tasks are
// idempotent, so at-least-once delivery is safe.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"driftwatch/internal/config"
	"driftwatch/internal/db"
	"driftwatch/internal/forecast"
	"driftwatch/internal/metrics"
	"driftwatch/internal/predictions"
	"driftwatch/internal/queue"
	"driftwatch/internal/types"
)

// Handler holds the dependencies for the prediction worker Lambda handler.
type Handler struct {
	service      *predictions.Service
	orchestrator *predictions.Orchestrator
	metrics      *metrics.TaskMetrics
	logger       *slog.Logger
}

// Handle processes an SQS event containing one or more prediction tasks.
// Each task is processed independently; failures are reported as partial
// batch failures so SQS retries only the affected messages.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to process SQS message",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage handles a single SQS message through the task router.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var task types.PredictionTask
	if err := json.Unmarshal([]byte(record.Body), &task); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal prediction task",
			"message_id", record.MessageId,
			"error", err,
		)
		// Permanent parse failure, do not retry (return nil to ACK).
		return nil
	}

	logger := h.logger.With(
		"task_id", task.TaskID,
		"trace_id", task.TraceID,
		"action", string(task.Action),
	)
	logger.InfoContext(ctx, "processing prediction task")

	// Record queue lag for observability.
	if sentTimestamp, ok := record.Attributes["SentTimestamp"]; ok {
		if sent, err := parseMillisTimestamp(sentTimestamp); err == nil {
			_ = h.metrics.PublishQueueLag(ctx, time.Since(sent))
		}
	}

	var err error
	switch task.Action {
	case types.TaskActionRefresh:
		err = h.service.RefreshObservation(ctx, task)
	case types.TaskActionBatchScan:
		err = h.orchestrator.ScanAndDispatch(ctx, task)
	case types.TaskActionBatchPredictor:
		err = h.orchestrator.RunPredictor(ctx, task)
	default:
		logger.ErrorContext(ctx, "unknown task action, discarding")
		// Unknown actions are permanent failures; retrying cannot help.
		return nil
	}

	result := "success"
	if err != nil {
		result = "failure"
	}
	if metricErr := h.metrics.PublishTaskOutcome(ctx, task.Action, result); metricErr != nil {
		logger.WarnContext(ctx, "failed to publish task outcome metric", "error", metricErr)
		// Non-fatal
	}
	return err
}

// parseMillisTimestamp parses a millisecond-epoch string into a time.Time.
// Used for the SQS SentTimestamp attribute to calculate queue lag.
func parseMillisTimestamp(ms string) (time.Time, error) {
	var millis int64
	if _, err := fmt.Sscanf(ms, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("Prediction Worker Lambda initializing (cold start)",
		"environment", cfg.Environment,
	)

	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to initialize database pool", "error", err)
		os.Exit(1)
	}

	taskMetrics := metrics.NewTaskMetrics(cwClient, cfg.Observability.MetricNamespace, logger)

	service := &predictions.Service{
		Log:          logger,
		Observations: db.NewObservationRepository(pool),
		Predictors:   db.NewPredictorRepository(pool),
		Progress:     db.NewProgressRepository(pool),
		Engine:       forecast.NewSeasonalEngine(),
		Metrics:      taskMetrics,
	}
	orchestrator := &predictions.Orchestrator{
		Service:           service,
		Dispatcher:        queue.NewTaskPublisher(sqsClient, cfg.AWS, logger),
		UpdateChunkSize:   cfg.Forecast.UpdateChunkSize,
		FanoutConcurrency: cfg.Forecast.FanoutConcurrency,
	}

	handler := &Handler{
		service:      service,
		orchestrator: orchestrator,
		metrics:      taskMetrics,
		logger:       logger,
	}

	logger.Info("Prediction Worker Lambda initialized",
		"task_queue", cfg.AWS.TaskQueueURL,
		"metric_namespace", cfg.Observability.MetricNamespace,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. This enables local integration testing without the AWS
	// Lambda RIE.
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("Failed to read stdin", "error", err)
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(payload, &sqsEvent); err != nil {
			logger.Error("Failed to parse SQS event", "error", err)
			os.Exit(1)
		}
		response, err := handler.Handle(ctx, sqsEvent)
		if err != nil {
			logger.Error("Handler failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Handler finished", "batch_item_failures", len(response.BatchItemFailures))
		return
	}

	lambda.Start(handler.Handle)
}
