package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "BACKEND_API_KEY", cfg.BackendKeyName)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10000, cfg.ExactCacheSize)
	assert.Equal(t, time.Hour, cfg.ExactCacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.BucketCacheTTL)
	assert.Equal(t, 10, cfg.MaxBatchSize)
	assert.Equal(t, 2, cfg.MinBatchSize)
	assert.Equal(t, 0.15, cfg.OpinionThreshold)
	assert.Equal(t, 0.2, cfg.BehaviorThreshold)
	assert.Equal(t, 15, cfg.MaxAgeGap)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.OpenDuration)
	assert.Equal(t, 72*time.Hour, cfg.FallbackCacheTTL)
	assert.False(t, cfg.EventsEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MAX_BATCH_SIZE", "25")
	t.Setenv("OPINION_THRESHOLD", "0.3")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("EVENTS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.MaxBatchSize)
	assert.Equal(t, 0.3, cfg.OpinionThreshold)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.EventsEnabled)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero timeout", "REQUEST_TIMEOUT", "0s"},
		{"negative cache size", "EXACT_CACHE_SIZE", "-1"},
		{"threshold above one", "OPINION_THRESHOLD", "1.5"},
		{"zero concurrency", "MAX_CONCURRENT", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_RejectsMinBatchAboveMax(t *testing.T) {
	t.Setenv("MIN_BATCH_SIZE", "20")
	t.Setenv("MAX_BATCH_SIZE", "10")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min batch size")
}

func TestEnvHelpers(t *testing.T) {
	assert.True(t, Config{AppEnv: "dev"}.IsDev())
	assert.True(t, Config{AppEnv: "PROD"}.IsProd())
	assert.False(t, Config{AppEnv: "prod"}.IsDev())
}
