package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger is the canonical interface for structured logging throughout the application.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// AsynqLogger adapts an slog.Logger to the asynq.Logger interface so the
// notification worker logs through the same handler as the rest of the process.
// asynq passes fmt.Print style arguments; they are joined into the message.
type AsynqLogger struct {
	logger *slog.Logger
	exit   func(int)
}

// NewAsynqLogger creates a new AsynqLogger wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewAsynqLogger(logger *slog.Logger) *AsynqLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqLogger{
		logger: WithComponent(logger, "asynq"),
		exit:   os.Exit,
	}
}

// Debug logs at debug level.
func (a *AsynqLogger) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

// Info logs at info level.
func (a *AsynqLogger) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

// Warn logs at warn level.
func (a *AsynqLogger) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

// Error logs at error level.
func (a *AsynqLogger) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

// Fatal logs at error level and exits the process with status 1.
func (a *AsynqLogger) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...), slog.Bool("fatal", true))
	a.exit(1)
}

// Logger returns the underlying slog.Logger.
func (a *AsynqLogger) Logger() *slog.Logger {
	return a.logger
}

// New builds the process logger. format is "json" or "text".
func New(format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
