package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewProductionLogger builds the JSON logger shared by the API server and
// worker. Every entry carries a "service" field so both streams can share a sink.
func NewProductionLogger(service string, debugMode bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debugMode {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	config.Encoding = "json"
	config.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	config.InitialFields = map[string]any{"service": service}
	// the default sampler drops repeated failed_to_persist_command entries during outages
	config.Sampling = nil

	return config.Build()
}

// Sync flushes buffered entries. Safe to call on a nil logger.
func Sync(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}

// NewConsoleLogger creates a human-readable stderr logger for the local planner CLI.
// It only shows warnings unless debugMode is set.
func NewConsoleLogger(debugMode bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debugMode {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	config.OutputPaths = []string{"stderr"}
	config.DisableStacktrace = !debugMode
	return config.Build()
}
