// Package logging builds the zap logger shared by every component of the service.
// Output goes to stdout as logfmt (default) or JSON.
package logging

import (
	"os"
	"strings"

	zaplogfmt "github.com/allir/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// Config holds logger configuration options.
type Config struct {
	// Level specifies the minimum log level (debug, info, warn, error).
	Level string `yaml:"level"`
	// Format selects the encoder: "logfmt" (default) or "json".
	Format string `yaml:"format"`
}

// New initializes a zap logger writing to stdout with the configured encoder and level.
func New(cfg Config) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	core := zapcore.NewCore(
		newEncoder(cfg.Format, encoderConfig),
		zapcore.Lock(os.Stdout),
		zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
	)

	return zap.New(core), nil
}

func newEncoder(format string, encoderConfig zapcore.EncoderConfig) zapcore.Encoder {
	if strings.EqualFold(format, FormatJSON) {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	return zaplogfmt.NewEncoder(encoderConfig)
}

// parseLevel converts a level name to a zapcore.Level, falling back to info.
func parseLevel(v string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
