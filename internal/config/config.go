// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev" validate:"oneof=dev staging prod"`
	Port   int    `env:"PORT" envDefault:"8080" validate:"gte=1,lte=65535"`

	// Remote agent service (Azure AI Foundry project).
	FoundryProjectEndpoint string `env:"FOUNDRY_PROJECT_ENDPOINT" validate:"required,url"`
	FoundryAPIVersion      string `env:"FOUNDRY_API_VERSION" envDefault:"2025-11-15-preview" validate:"required"`
	ModelDeploymentName    string `env:"MODEL_DEPLOYMENT_NAME" validate:"required"`
	// FoundryHTTPTimeoutSeconds is the per-call timeout; clamped to 10..600.
	FoundryHTTPTimeoutSeconds int `env:"FOUNDRY_HTTP_TIMEOUT_SECONDS" envDefault:"600"`

	// Provisioning and persistence.
	SeedDataDir    string `env:"SEED_DATA_DIR" envDefault:"seed-data"`
	StateStore     string `env:"STATE_STORE" envDefault:"local" validate:"oneof=local"`
	StateLocalPath string `env:"STATE_LOCAL_PATH" envDefault:"data/state.json"`
	JobDataDir     string `env:"JOB_DATA_DIR" envDefault:"data/jobs"`

	// HTML download endpoint gate.
	AllowHTMLDownload  bool   `env:"ALLOW_HTML_DOWNLOAD" envDefault:"false"`
	HTMLDownloadAPIKey string `env:"HTML_DOWNLOAD_API_KEY"`

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`
	RateLimitPerMin    int    `env:"RATE_LIMIT_PER_MIN" envDefault:"30" validate:"gte=1"`

	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"slide-generator"`
}

// Load parses environment variables into a Config and validates ranges.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if cfg.FoundryHTTPTimeoutSeconds < 10 {
		cfg.FoundryHTTPTimeoutSeconds = 10
	}
	if cfg.FoundryHTTPTimeoutSeconds > 600 {
		cfg.FoundryHTTPTimeoutSeconds = 600
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// FoundryHTTPTimeout returns the per-call timeout as a duration.
func (c Config) FoundryHTTPTimeout() time.Duration {
	return time.Duration(c.FoundryHTTPTimeoutSeconds) * time.Second
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }
