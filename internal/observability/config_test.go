package observability

import (
	"testing"

	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigSamplesEverythingOutsideProduction(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:  "staging",
		OTLPEndpoint: "collector:4317",
		Observability: config.ObservabilityConfig{
			OtelEnabled:   true,
			SamplingRatio: 0.1,
		},
	})

	assert.Equal(t, "eksporyuk", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigProduction(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "eksporyuk-webhooks",
		AppVersion:  "1.4.0",
		Environment: "production",
		Observability: config.ObservabilityConfig{
			LogLevel:      "DEBUG",
			OtelEnabled:   true,
			OtelProtocol:  "http",
			SamplingRatio: 0.2,
		},
	})

	assert.Equal(t, "eksporyuk-webhooks", cfg.ServiceName)
	assert.Equal(t, "1.4.0", cfg.Version)
	assert.Equal(t, 0.2, cfg.OtelSamplingRatio)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	// No endpoint, nothing to export to.
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestDebugInDevelopment(t *testing.T) {
	assert.True(t, Config{Environment: "development"}.Debug())
	assert.True(t, Config{Environment: " Local "}.Debug())
	assert.False(t, Config{Environment: "production", LogLevel: "info"}.Debug())
}
