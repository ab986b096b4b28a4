// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in date arithmetic.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is a diagnostic error type returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load loads and validates the driftwatch configuration from the environment.
func Load() (*Config, error) {
	// Every date in the engine is UTC midnight; a non-UTC process timezone
	// would shift day boundaries.
	time.Local = time.UTC

	// godotenv.Load silently succeeds when no .env exists and never overrides
	// variables already present in the environment.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration failed validation",
			Err:     err,
		}
	}

	return &cfg, nil
}
