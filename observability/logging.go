// Package observability provides logging for chess-relay.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wricardo/chess-relay/config"
)

// BuildInfo identifies the binary. Its fields are stamped on every log line.
type BuildInfo struct {
	App     string
	Version string
}

func (b BuildInfo) fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if b.App != "" {
		fields["app"] = b.App
	}
	if b.Version != "" {
		fields["version"] = b.Version
	}
	return fields
}

// NewLogger creates a structured logger from the given logging configuration.
// Output goes to stderr so stdout stays free for the MCP stdio transport.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
func NewLogger(cfg config.LoggingConfig, build BuildInfo) (*zap.Logger, error) {
	zapCfg, err := zapConfig(cfg, build)
	if err != nil {
		return nil, err
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

func zapConfig(cfg config.LoggingConfig, build BuildInfo) (zap.Config, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stderr"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	if fields := build.fields(); len(fields) > 0 {
		zapCfg.InitialFields = fields
	}
	return zapCfg, nil
}
