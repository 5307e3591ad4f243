package observability

import (
	"testing"

	"github.com/smallbiznis/loyalty/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizes(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "info",
			LogFormat:     "pretty",
			SamplingRatio: 4,
		},
	})

	assert.Equal(t, "loyalty", cfg.ServiceName)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "Development"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
