// Package logging builds the launcher's diagnostic logger.
//
// Diagnostics always go to stderr: stdout belongs to the align process.
package logging

import (
	"strings"

	"alignrun/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName names the root logger.
const ServiceName = "alignrun"

// New returns a logger writing to w at the configured level and format.
// An unparsable level falls back to warn.
func New(cfg config.LogConfig, w zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.WarnLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.WarnLevel)
		}
	}

	core := zapcore.NewCore(encoder(cfg.Format), w, level)
	return zap.New(core, zap.AddStacktrace(zap.ErrorLevel)).Named(ServiceName)
}

func encoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.EqualFold(format, "json") {
		return zapcore.NewJSONEncoder(encoderConfig)
	}

	encoderConfig.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// Sync flushes the logger, ignoring the errors stderr commonly returns
// for fsync on terminals and pipes.
func Sync(logger *zap.Logger) {
	if logger == nil {
		return
	}
	_ = logger.Sync()
}
