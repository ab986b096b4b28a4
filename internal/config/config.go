// Package config defines the global configuration structure for the
// driftwatch engine. Configuration is loaded once at process initialization
// (worker cold start) and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Any missing required value or invalid format fails the process immediately
// on startup (fail fast). Sub-components receive only the specific config
// subsets they require.
package config

import "time"

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"driftwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Database      DatabaseConfig
	AWS           AWSConfig
	Forecast      ForecastConfig
	Observability ObservabilityConfig
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	TaskQueueURL   string `envconfig:"SQS_PREDICTION_TASKS" validate:"required,url"`
	IngestQueueURL string `envconfig:"SQS_INGEST_BATCHES" validate:"required,url"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ForecastConfig holds tunables for the prediction pipeline. The defaults
// match the model's documented semantics; they are exposed mainly so load
// tests can shrink chunk sizes.
type ForecastConfig struct {
	// UpdateChunkSize bounds transaction size and lock duration during bulk
	// prediction updates.
	UpdateChunkSize int `envconfig:"FORECAST_UPDATE_CHUNK_SIZE" default:"2000" validate:"min=1"`

	// FanoutConcurrency bounds parallel SQS enqueues during batch scans.
	FanoutConcurrency int `envconfig:"FORECAST_FANOUT_CONCURRENCY" default:"8" validate:"min=1"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Driftwatch"`
}
