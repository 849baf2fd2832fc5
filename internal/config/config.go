// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config holds all pipeline configuration parsed from environment variables.
// Defaults mirror the tuning the simulation ships with; none of these are
// exposed as CLI flags.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"dev"`
	Port        int    `env:"PORT" envDefault:"8080" validate:"gt=0"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"polisim-ai-gateway"`

	// Backend endpoint (OpenAI-compatible chat completions).
	BackendBaseURL   string        `env:"BACKEND_BASE_URL" envDefault:"https://integrate.api.nvidia.com/v1" validate:"required"`
	BackendModel     string        `env:"BACKEND_MODEL" envDefault:"meta/llama-3.1-8b-instruct"`
	BackendKeyName   string        `env:"BACKEND_KEY_NAME" envDefault:"BACKEND_API_KEY"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	MaxTokens        int           `env:"MAX_TOKENS" envDefault:"256" validate:"gt=0"`
	Temperature      float64       `env:"TEMPERATURE" envDefault:"0.7" validate:"gte=0,lte=2"`
	PromptTokenLimit int           `env:"PROMPT_TOKEN_LIMIT" envDefault:"2048" validate:"gt=0"`

	// Response caches. The exact and bucket tiers are independent.
	ExactCacheSize  int           `env:"EXACT_CACHE_SIZE" envDefault:"10000" validate:"gt=0"`
	ExactCacheTTL   time.Duration `env:"EXACT_CACHE_TTL" envDefault:"1h" validate:"gt=0"`
	BucketCacheSize int           `env:"BUCKET_CACHE_SIZE" envDefault:"5000" validate:"gt=0"`
	BucketCacheTTL  time.Duration `env:"BUCKET_CACHE_TTL" envDefault:"30m" validate:"gt=0"`

	// Clustering batcher.
	MaxBatchSize  int           `env:"MAX_BATCH_SIZE" envDefault:"10" validate:"gt=0"`
	MinBatchSize  int           `env:"MIN_BATCH_SIZE" envDefault:"2" validate:"gt=0"`
	BatchInterval time.Duration `env:"BATCH_INTERVAL" envDefault:"100ms" validate:"gt=0"`
	BatchTimeout  time.Duration `env:"BATCH_TIMEOUT" envDefault:"500ms" validate:"gt=0"`

	// Similarity thresholds. Opinion distance is a normalized Euclidean
	// distance in [0,1]; behavior distance is a mean absolute difference.
	OpinionThreshold  float64 `env:"OPINION_THRESHOLD" envDefault:"0.15" validate:"gte=0,lte=1"`
	BehaviorThreshold float64 `env:"BEHAVIOR_THRESHOLD" envDefault:"0.2" validate:"gte=0,lte=1"`
	MaxAgeGap         int     `env:"MAX_AGE_GAP" envDefault:"15" validate:"gte=0"`

	// Resilience.
	MaxConcurrent    int           `env:"MAX_CONCURRENT" envDefault:"4" validate:"gt=0"`
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"5" validate:"gt=0"`
	OpenDuration     time.Duration `env:"OPEN_DURATION" envDefault:"30s" validate:"gt=0"`

	// Offline fallback generator cache. Fallback content is cheap to reuse,
	// so the TTL is days rather than hours.
	FallbackCacheSize int           `env:"FALLBACK_CACHE_SIZE" envDefault:"2000" validate:"gt=0"`
	FallbackCacheTTL  time.Duration `env:"FALLBACK_CACHE_TTL" envDefault:"72h" validate:"gt=0"`

	// Event notifications (result-ready sink).
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:19092"`
	EventsTopic   string   `env:"EVENTS_TOPIC" envDefault:"ai-results"`
	EventsEnabled bool     `env:"EVENTS_ENABLED" envDefault:"false"`

	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses environment variables into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Validate: %w", err)
	}
	if cfg.MinBatchSize > cfg.MaxBatchSize {
		return Config{}, fmt.Errorf("op=config.Validate: min batch size %d exceeds max %d", cfg.MinBatchSize, cfg.MaxBatchSize)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }
