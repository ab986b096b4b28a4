// Package main is the entrypoint for the Ingest Worker Lambda function.
//
// The Ingest Worker consumes IngestBatch messages from the ingest SQS queue.
// Each batch carries (region code, date, value) records; the worker validates
// them, resolves region codes, creates observation rows, and enqueues one
// prediction refresh per created observation. Malformed records, unknown
// regions, and duplicate dates are counted and skipped, never fatal.
//
// Cold Start (main):
//  1. Load and validate configuration (fail fast).
//  2. Initialize the structured JSON logger.
//  3. Load AWS SDK configuration and build the SQS client.
//  4. Open the pgx connection pool and verify connectivity.
//  5. Wire repositories, the task publisher, and the ingest service.
//  6. Register the handler and call lambda.Start.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"driftwatch/internal/config"
	"driftwatch/internal/db"
	"driftwatch/internal/ingest"
	"driftwatch/internal/queue"
	"driftwatch/internal/types"
)

// Handler holds the dependencies for the ingest worker Lambda handler.
type Handler struct {
	service *ingest.Service
	logger  *slog.Logger
}

// Handle processes an SQS event containing one or more ingest batches, using
// partial batch responses so SQS retries only the failed messages. Re-running
// a batch is safe: already created observations are counted as duplicates.
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

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var batch types.IngestBatch
	if err := json.Unmarshal([]byte(record.Body), &batch); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal ingest batch",
			"message_id", record.MessageId,
			"error", err,
		)
		// Permanent parse failure, do not retry (return nil to ACK).
		return nil
	}

	_, err := h.service.ProcessBatch(ctx, batch)
	return err
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
	logger.Info("Ingest Worker Lambda initializing (cold start)",
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

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to initialize database pool", "error", err)
		os.Exit(1)
	}

	service := ingest.NewService(
		logger,
		db.NewRegionRepository(pool),
		db.NewObservationRepository(pool),
		queue.NewTaskPublisher(sqsClient, cfg.AWS, logger),
	)

	handler := &Handler{service: service, logger: logger}

	logger.Info("Ingest Worker Lambda initialized",
		"ingest_queue", cfg.AWS.IngestQueueURL,
		"task_queue", cfg.AWS.TaskQueueURL,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime.
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
