// Package logging provides the module registry's structured logging,
// grounded on GriffinCanCode-ArtificialOS's zap-based logging package:
// JSON output in production, console-encoded output in development.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger for the given mode ("production" or
// "development"; anything else falls back to production).
func New(mode string) (*zap.Logger, error) {
	switch mode {
	case "development":
		return zap.NewDevelopment()
	default:
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	}
}

// NewDefault builds a production-mode logger, or a no-op logger if
// construction fails (e.g. a broken output path), so callers that don't
// check the error still get a usable logger.
func NewDefault() *zap.Logger {
	log, err := New("production")
	if err != nil {
		return zap.NewNop()
	}
	return log
}
