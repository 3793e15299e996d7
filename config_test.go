package compose

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(`
logLevel: debug
timing: activations
metricsNamespace: shop
validateOnStart: true
validateBoundaries:
  - session
  - request
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, TimingActivations, cfg.timingMode())
	assert.Equal(t, "shop", cfg.MetricsNamespace)
	assert.True(t, cfg.ValidateOnStart)
	assert.Equal(t, []string{"session", "request"}, cfg.ValidateBoundaries)

	logger, err := cfg.buildLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestLoadConfig_Empty(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, TimingDisable, cfg.timingMode())

	logger, err := cfg.buildLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad log level", "logLevel: verbose"},
		{"bad timing", "timing: always"},
		{"empty boundary", "validateBoundaries: [request, '']"},
		{"unknown field", "colour: blue"},
		{"not yaml", "logLevel: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("COMPOSE_LOG_LEVEL", "warn")
	t.Setenv("COMPOSE_TIMING", "activations")
	t.Setenv("COMPOSE_METRICS_NAMESPACE", "envns")
	t.Setenv("COMPOSE_VALIDATE_ON_START", "true")
	t.Setenv("COMPOSE_VALIDATE_BOUNDARIES", "session, request")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, TimingActivations, cfg.timingMode())
	assert.Equal(t, "envns", cfg.MetricsNamespace)
	assert.True(t, cfg.ValidateOnStart)
	assert.Equal(t, []string{"session", "request"}, cfg.ValidateBoundaries)
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("COMPOSE_LOG_LEVEL", "")
	t.Setenv("COMPOSE_TIMING", "")
	t.Setenv("COMPOSE_METRICS_NAMESPACE", "")
	t.Setenv("COMPOSE_VALIDATE_ON_START", "")
	t.Setenv("COMPOSE_VALIDATE_BOUNDARIES", "")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "disabled", cfg.Timing)
	assert.False(t, cfg.ValidateOnStart)
	assert.Empty(t, cfg.ValidateBoundaries)

	t.Setenv("COMPOSE_LOG_LEVEL", "chatty")
	_, err = ConfigFromEnv()
	assert.Error(t, err)
}

func TestNew_WithConfig(t *testing.T) {
	c := newTestContainer(t, nil, WithConfig(Config{Timing: "activations"}))
	assert.Equal(t, TimingActivations, c.timing)

	c = newTestContainer(t, nil, WithConfig(Config{Timing: "activations"}), WithTiming(TimingDisable))
	assert.Equal(t, TimingDisable, c.timing)

	_, err := New(MustNewCatalog("test", nil), WithConfig(Config{LogLevel: "loud"}))
	assert.Error(t, err)
}
