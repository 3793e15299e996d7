package compose

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the container settings that are usually supplied by the host application rather than
// written in code.
type Config struct {
	// LogLevel of the production zap logger built for the container.
	LogLevel string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`

	// Timing is "disabled" or "activations".
	Timing string `yaml:"timing" validate:"omitempty,oneof=disabled activations"`

	MetricsNamespace string `yaml:"metricsNamespace" validate:"omitempty,max=64"`

	// ValidateOnStart composes every part when the container is created.
	ValidateOnStart bool `yaml:"validateOnStart"`

	// ValidateBoundaries are nested under the container boundary, outermost first, for start-up
	// validation.
	ValidateBoundaries []string `yaml:"validateBoundaries" validate:"dive,required"`
}

var configValidator = validator.New()

// LoadConfig reads a YAML Config and validates it.
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("compose: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigFromEnv builds a Config from COMPOSE_* environment variables.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		LogLevel:         getEnv("COMPOSE_LOG_LEVEL", "info"),
		Timing:           getEnv("COMPOSE_TIMING", "disabled"),
		MetricsNamespace: getEnv("COMPOSE_METRICS_NAMESPACE", ""),
		ValidateOnStart:  getEnvBool("COMPOSE_VALIDATE_ON_START", false),
	}
	if raw := getEnv("COMPOSE_VALIDATE_BOUNDARIES", ""); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			cfg.ValidateBoundaries = append(cfg.ValidateBoundaries, strings.TrimSpace(b))
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("compose: invalid config: %w", err)
	}
	return nil
}

func (c Config) timingMode() TimingMode {
	if c.Timing == "activations" {
		return TimingActivations
	}
	return TimingDisable
}

func (c Config) buildLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.LogLevel != "" {
		if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return nil, fmt.Errorf("compose: log level %q: %w", c.LogLevel, err)
		}
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
