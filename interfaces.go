package birdisle

import (
	"context"
	"log/slog"
	"time"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordCommandProcessed records a processed command with its duration
	RecordCommandProcessed(cmd string, duration time.Duration)

	// RecordError records an error event
	RecordError(errorType string)

	// RecordKeyCount records the current number of keys
	RecordKeyCount(count int64)

	// RecordConnection records an accepted client connection
	RecordConnection()
}

// slogLogger implements Logger on top of a slog.Logger
type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger returns a Logger writing to l
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{logger: l}
}

// defaultLogger logs through the process-wide slog logger
func defaultLogger() Logger {
	return &slogLogger{logger: slog.Default().With("component", "birdisle")}
}

func (l *slogLogger) Debug(msg string, fields ...Field) {
	l.log(slog.LevelDebug, msg, fields)
}

func (l *slogLogger) Info(msg string, fields ...Field) {
	l.log(slog.LevelInfo, msg, fields)
}

func (l *slogLogger) Error(msg string, fields ...Field) {
	l.log(slog.LevelError, msg, fields)
}

func (l *slogLogger) log(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, field := range fields {
		attrs = append(attrs, slog.Any(field.Key, field.Value))
	}
	l.logger.LogAttrs(ctx, level, msg, attrs...)
}
