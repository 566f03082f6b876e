package observability

import (
	"testing"

	"github.com/smallbiznis/stockledger/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizesTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:           " ",
		AppVersion:        "1.2.3",
		Environment:       "Staging",
		LogLevel:          " DEBUG ",
		OTelEnabled:       true,
		OTLPEndpoint:      "collector:4318",
		OTLPProtocol:      "HTTP/PROTOBUF",
		OTelSamplingRatio: 1.5,
	})

	assert.Equal(t, "stockledger", cfg.ServiceName)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.True(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigDisablesExportWithoutEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{OTelEnabled: true, OTLPProtocol: "zipkin", OTelSamplingRatio: -1})

	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Zero(t, cfg.OtelSamplingRatio)
}

func TestDebugFollowsEnvironment(t *testing.T) {
	assert.True(t, Config{Environment: "local", LogLevel: "info"}.Debug())
	assert.False(t, Config{Environment: "production", LogLevel: "info"}.Debug())
	assert.True(t, Config{Environment: "production", LogLevel: "debug"}.Debug())
}
