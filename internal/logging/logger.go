// Package logging builds the zap loggers used by the crawler binaries.
package logging

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/story-crawler/internal/config"
)

// New builds a zap.Logger configured for development or production.
// Development output is colored console text; production is JSON.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.InitialFields = map[string]any{"service": "story-crawler"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger (development=%t): %w", development, err)
	}
	return logger, nil
}

// FromConfig builds the logger selected by the logging section.
func FromConfig(cfg config.LoggingConfig) (*zap.Logger, error) {
	return New(cfg.Development)
}

// Sync flushes logger, ignoring the errors terminals report for stdout/stderr.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return fmt.Errorf("sync logger: %w", err)
}
