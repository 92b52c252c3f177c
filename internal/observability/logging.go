// Package observability provides structured logging and Prometheus metrics
// for the registration backend.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger wraps slog with request correlation and sensitive-data redaction.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// LogConfig configures logging behaviour.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string
	// Format is "json" (production) or "text" (development).
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
	// RedactPatterns are additional regex patterns for sensitive data.
	RedactPatterns []string
}

// ContextKey is the type for context keys used in logging.
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey ContextKey = "request_id"
	// SessionIDKey is the context key for session IDs.
	SessionIDKey ContextKey = "session_id"
)

// DefaultRedactPatterns covers API keys, tokens, and UK mobile numbers, which
// appear in collected registration data and must not reach log output.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`\b07\d{9}\b`,
}

// NewLogger creates a structured logger. Invalid or empty level defaults to
// "info"; empty format defaults to "json".
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(config.Format) == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(DefaultRedactPatterns)+len(config.RedactPatterns))
	for _, pattern := range append(DefaultRedactPatterns, config.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

// NopLogger returns a logger that discards everything. Useful in tests.
func NopLogger() *Logger {
	return NewLogger(LogConfig{Output: io.Discard})
}

// With returns a logger with the given attributes attached to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), redacts: l.redacts}
}

// WithContext returns a logger carrying the request and session IDs found in
// ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	out := l
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		out = out.With("request_id", requestID)
	}
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		out = out.With("session_id", sessionID)
	}
	return out
}

// Debug logs at debug level with redaction applied to the message.
func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(l.redact(msg), args...) }

// Info logs at info level with redaction applied to the message.
func (l *Logger) Info(msg string, args ...any) { l.logger.Info(l.redact(msg), args...) }

// Warn logs at warn level with redaction applied to the message.
func (l *Logger) Warn(msg string, args ...any) { l.logger.Warn(l.redact(msg), args...) }

// Error logs at error level with redaction applied to the message.
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(l.redact(msg), args...) }

func (l *Logger) redact(msg string) string {
	for _, re := range l.redacts {
		msg = re.ReplaceAllString(msg, "[REDACTED]")
	}
	return msg
}
