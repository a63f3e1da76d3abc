// Package logging builds the process-wide zap logger. Production gets
// JSON output at info level; development and staging get the console
// encoder at debug level.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"alex/internal/config"
)

// New constructs the base logger for the given application environment.
// Subsystems derive their own loggers with Named and With.
func New(appEnv string) (*zap.Logger, error) {
	var cfg zap.Config
	switch appEnv {
	case config.EnvProduction:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case config.EnvDevelopment, config.EnvStaging:
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown app env %q", appEnv)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
