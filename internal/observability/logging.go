// Package observability owns process-wide logging and telemetry. Commands
// log through the package-level CLILogger; the serve command additionally
// builds a named structured logger for the HTTP server and initializes the
// telemetry system behind the /metrics endpoint.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by CLI commands. It is a no-op until
// InitCLILogger runs, so commands can log unconditionally.
var CLILogger = zap.NewNop()

// InitCLILogger configures CLILogger for the given profile.
//
// Profiles (case-insensitive):
//   - structured: JSON output for machine consumption
//   - cli, text, console: human-readable console output
//   - test, silent: no output
//
// verbose lowers the level to debug.
func InitCLILogger(profile string, verbose bool) error {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	logger, err := buildLogger(profile, level)
	if err != nil {
		return err
	}
	CLILogger = logger
	return nil
}

// NewLogger builds a named logger for long-running components such as the
// HTTP server. level is a zap level name ("debug", "info", "warn", "error").
func NewLogger(name, profile, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger, err := buildLogger(profile, lvl)
	if err != nil {
		return nil, err
	}
	return logger.Named(name), nil
}

func buildLogger(profile string, level zapcore.Level) (*zap.Logger, error) {
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "", "structured":
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	case "cli", "text", "console":
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		// CLI output carries the message and fields only.
		cfg.EncoderConfig.TimeKey = ""
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
		return cfg.Build()
	case "test", "silent":
		return zap.NewNop(), nil
	default:
		return nil, fmt.Errorf("unknown logging profile %q", profile)
	}
}
