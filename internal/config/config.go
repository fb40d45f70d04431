// Package config defines the global configuration structure for the Droplink
// payments service. Configuration is loaded once at process initialization and
// is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup. In particular the provider API key is validated here,
// before any provider call is attempted, so a misconfigured deployment fails
// fast rather than per-request.
package config

import (
	"time"

	"droplink/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the payments service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"droplink-payments"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Provider ProviderConfig
	Webhook  WebhookConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// ProviderConfig holds the DropPay payment provider credentials and endpoint.
// The API key is required: its absence is a fatal configuration error surfaced
// at startup, never per-request.
type ProviderConfig struct {
	BaseURL    string        `envconfig:"DROPPAY_BASE_URL" default:"https://droppay-v2.lovable.app/api/v1" validate:"required,url"`
	APIKey     SecretString  `envconfig:"DROPPAY_API_KEY" validate:"required"`
	AuthScheme string        `envconfig:"DROPPAY_AUTH_SCHEME" default:"Key"`
	Timeout    time.Duration `envconfig:"DROPPAY_TIMEOUT" default:"20s"`
}

// WebhookConfig holds settings for inbound provider webhooks.
//
// SharedSecret may be empty: in that case signature verification is skipped
// and every accepted payload is logged as a degraded-security condition.
type WebhookConfig struct {
	SharedSecret SecretString `envconfig:"DROPPAY_WEBHOOK_SECRET"`
}

// AWSConfig holds the region used for SSM secret resolution in non-local
// environments.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
