package util

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Init builds the process-wide logger. Production gets sampled JSON output
// with ISO-8601 timestamps; everything else gets colored console output.
// The first call wins; later calls return the existing logger.
func Init(environment, level, format string) *zap.Logger {
	once.Do(func() {
		cfg := loggerConfig(environment, level)

		if format == "json" {
			cfg.Encoding = "json"
		} else {
			cfg.Encoding = "console"
		}

		// stdout/stderr only, container runtimes collect the streams
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}

		logger, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}

		globalLogger = logger
		zap.ReplaceGlobals(globalLogger)
	})

	return globalLogger
}

func loggerConfig(environment, level string) zap.Config {
	if environment == "production" {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(level))
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
		cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
		return cfg
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(level))
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg
}

// Get returns the global logger, initializing a production logger if the
// process never called Init (tests, one-off tools)
func Get() *zap.Logger {
	if globalLogger == nil {
		return Init("production", "info", "json")
	}
	return globalLogger
}

// Sync flushes any buffered log entries
func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Package-level logging shorthand used throughout the service

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Get().Fatal(msg, fields...) }

// Field helpers so callers don't need a zap import for the common cases

func String(key, value string) zap.Field { return zap.String(key, value) }

func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }

func Int(key string, value int) zap.Field { return zap.Int(key, value) }

// ErrorField names the error field; Error is taken by the log shorthand
func ErrorField(err error) zap.Field { return zap.Error(err) }

func Duration(key string, value time.Duration) zap.Field { return zap.Duration(key, value) }
