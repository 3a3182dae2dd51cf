package logger

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Logger is the process logger for the engine. It is distinct from the
// persisted activity log: this one is for operators, the activity log is for
// the database.
type Logger struct {
	*slog.Logger
}

var isDebug = os.Getenv("DEBUG")

// NewLogger creates a new Logger instance. When stderr is a terminal the
// pretty handler is used; otherwise output is line-oriented JSON.
func NewLogger() *Logger {
	level := slog.LevelInfo
	addSource := false
	if isDebug == "1" {
		level = slog.LevelDebug
		addSource = true
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
	}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = NewHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(discard{}, nil))}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// withError enhances log attributes with error details if present
func withError(err error, attrs []slog.Attr) []slog.Attr {
	if err == nil {
		return attrs
	}
	return append(attrs, slog.String("error", err.Error()))
}

// Info logs a message at INFO level without context
func (l *Logger) Info(msg string, attrs ...slog.Attr) {
	l.Logger.Info(msg, slog.Any("data", attrs))
}

// InfoContext logs a message at INFO level with context
func (l *Logger) InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.Logger.InfoContext(ctx, msg, slog.Any("data", attrs))
}

// Warn logs a message at WARN level without context
func (l *Logger) Warn(msg string, attrs ...slog.Attr) {
	l.Logger.Warn(msg, slog.Any("data", attrs))
}

// WarnContext logs a message at WARN level with context
func (l *Logger) WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.Logger.WarnContext(ctx, msg, slog.Any("data", attrs))
}

// Error logs a message at ERROR level with error details without context
func (l *Logger) Error(msg string, err error, attrs ...slog.Attr) {
	l.Logger.Error(msg, slog.Any("data", withError(err, attrs)))
}

// ErrorContext logs a message at ERROR level with error details and context
func (l *Logger) ErrorContext(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	l.Logger.ErrorContext(ctx, msg, slog.Any("data", withError(err, attrs)))
}

// Fatal logs a message at ERROR level with error details and exits
func (l *Logger) Fatal(msg string, err error, attrs ...slog.Attr) {
	l.Logger.Error(msg, slog.Any("data", withError(err, attrs)))
	os.Exit(1)
}

// Debug logs a message at DEBUG level without context
func (l *Logger) Debug(msg string, attrs ...slog.Attr) {
	l.Logger.Debug(msg, slog.Any("data", attrs))
}

// DebugContext logs a message at DEBUG level with context
func (l *Logger) DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.Logger.DebugContext(ctx, msg, slog.Any("data", attrs))
}

// With creates a new Logger with the given attributes that will be included in all log messages
func (l *Logger) With(attrs ...slog.Attr) *Logger {
	return &Logger{Logger: l.Logger.With(slog.Any("context", attrs))}
}
