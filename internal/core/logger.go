package core

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.SugaredLogger

func InitLogger(verbose bool) {
	var config zap.Config

	if verbose {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	} else {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	config.DisableStacktrace = !verbose

	l, err := config.Build()
	if err != nil {
		panic(err)
	}

	zap.ReplaceGlobals(l)
	zap.RedirectStdLog(l)
	logger = l.Sugar()
}

// GetLogger returns the global sugared logger
func GetLogger() *zap.SugaredLogger {
	if logger == nil {
		InitLogger(false)
	}
	return logger
}

// WithFields creates a logger with the given structured fields
func WithFields(fields ...any) *zap.SugaredLogger {
	return GetLogger().With(fields...)
}

// LogDuration logs the duration of an operation
// Usage: defer LogDuration(logger, "operation_name", time.Now())
func LogDuration(logger *zap.SugaredLogger, operation string, start time.Time) {
	duration := time.Since(start)
	logger.With(
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	).Debugf("Completed %s in %v", operation, duration)
}

// WithConn creates a logger carrying a connection's id and remote host
func WithConn(logger *zap.SugaredLogger, id, remote string) *zap.SugaredLogger {
	return logger.With(
		"conn", id,
		"remote", remote,
	)
}

// WithUser adds the user's current nick and username
func WithUser(logger *zap.SugaredLogger, nick, username string) *zap.SugaredLogger {
	return logger.With(
		"nick", nick,
		"user", username,
	)
}
