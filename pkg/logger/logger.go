package logger

import (
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger logr.Logger
	globalZap    *zap.Logger
)

// ParseLevel maps a textual level to a zap level. Unknown values fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Setup builds a JSON zap logger on stderr and wraps it as a logr.Logger.
// The returned *zap.Logger must be synced by the caller before exit.
func Setup(level string) (logr.Logger, *zap.Logger) {
	zapLevel := ParseLevel(level)

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := zapConfig.Build()
	if err != nil {
		devConfig := zap.NewDevelopmentConfig()
		devConfig.Level = zap.NewAtomicLevelAt(zapLevel)
		zapLogger, _ = devConfig.Build()
	}
	return zapr.NewLogger(zapLogger), zapLogger
}

// Init configures the process-wide logger returned by Get.
func Init(level string) {
	globalLogger, globalZap = Setup(level)
}

// Get returns the process-wide logger, initializing it at info level if needed.
func Get() logr.Logger {
	if globalLogger.GetSink() == nil {
		Init("info")
	}
	return globalLogger
}

// Sync flushes the process-wide logger.
func Sync() {
	if globalZap != nil {
		_ = globalZap.Sync()
	}
}
