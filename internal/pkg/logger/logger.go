// Package logger is the worker's slog wrapper. Every record carries the
// service name; job, delivery and request identifiers travel through the
// context and are attached by FromContext.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

type contextKey string

const (
	// JobIDKey holds the conversion job uuid.
	JobIDKey contextKey = "job_id"
	// DeliveryTagKey holds the broker delivery tag.
	DeliveryTagKey contextKey = "delivery_tag"
	// RequestIDKey holds the ops HTTP request id.
	RequestIDKey contextKey = "request_id"
)

type Logger struct {
	*slog.Logger
}

type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

// NewDefault is used before configuration has been loaded.
func NewDefault() *Logger {
	return New(Config{Level: "info", ServiceName: "docconv-worker"})
}

// Discard drops everything.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: "error"})
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithJobID(jobID string) *Logger {
	return l.with(slog.String(string(JobIDKey), jobID))
}

func (l *Logger) WithDelivery(tag uint64) *Logger {
	return l.with(slog.Uint64(string(DeliveryTagKey), tag))
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with(slog.String(string(RequestIDKey), requestID))
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.with(slog.String("component", component))
}

// WithError returns l unchanged for a nil error.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	if len(fields) == 0 {
		return l
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// FromContext attaches whichever of the request id, delivery tag and job
// uuid are present on ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	var args []any
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		args = append(args, slog.String(string(RequestIDKey), id))
	}
	if tag, ok := ctx.Value(DeliveryTagKey).(uint64); ok && tag != 0 {
		args = append(args, slog.Uint64(string(DeliveryTagKey), tag))
	}
	if id, ok := ctx.Value(JobIDKey).(string); ok && id != "" {
		args = append(args, slog.String(string(JobIDKey), id))
	}
	if len(args) == 0 {
		return l
	}
	return l.with(args...)
}

// LogError logs err at error level with the caller's file and line. A nil
// err logs nothing.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		args = append(args, slog.Group("source", slog.String("file", file), slog.Int("line", line)))
	}
	args = append(args, "error", err.Error())
	l.FromContext(ctx).Error(msg, args...)
}

// LogFatal logs and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

func ContextWithDelivery(ctx context.Context, tag uint64) context.Context {
	return context.WithValue(ctx, DeliveryTagKey, tag)
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

// parseLevel falls back to info for anything it does not recognise.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
