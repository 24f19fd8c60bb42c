// Package observability carries structured logging context (build, project,
// stage, task) through context.Context and emits slog records enriched with it.
package observability

import (
	"context"
	"log/slog"
	"strconv"
)

// LogContext holds structured logging context information.
type LogContext struct {
	BuildID string
	Project string
	Version string
	Stage   string
	TaskID  string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithBuildID adds a build ID to the context.
func WithBuildID(ctx context.Context, buildID int64) context.Context {
	lc := extractLogContext(ctx)
	lc.BuildID = strconv.FormatInt(buildID, 10)
	return context.WithValue(ctx, logContextKey, lc)
}

// WithProject adds a project slug to the context.
func WithProject(ctx context.Context, slug string) context.Context {
	lc := extractLogContext(ctx)
	lc.Project = slug
	return context.WithValue(ctx, logContextKey, lc)
}

// WithVersion adds a version slug to the context.
func WithVersion(ctx context.Context, slug string) context.Context {
	lc := extractLogContext(ctx)
	lc.Version = slug
	return context.WithValue(ctx, logContextKey, lc)
}

// WithStage adds a stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := extractLogContext(ctx)
	lc.Stage = stage
	return context.WithValue(ctx, logContextKey, lc)
}

// WithTaskID adds a task ID to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	lc := extractLogContext(ctx)
	lc.TaskID = taskID
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := []slog.Attr{}

	if lc.BuildID != "" {
		attrs = append(attrs, slog.String("build.id", lc.BuildID))
	}
	if lc.Project != "" {
		attrs = append(attrs, slog.String("project", lc.Project))
	}
	if lc.Version != "" {
		attrs = append(attrs, slog.String("version", lc.Version))
	}
	if lc.Stage != "" {
		attrs = append(attrs, slog.String("stage", lc.Stage))
	}
	if lc.TaskID != "" {
		attrs = append(attrs, slog.String("task.id", lc.TaskID))
	}

	return attrs
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelInfo, msg, attrs)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelWarn, msg, attrs)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelError, msg, attrs)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelDebug, msg, attrs)
}

func logAttrs(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	all := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, level, msg, all...)
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

// HasContextValue checks if a specific context value is set.
func HasContextValue(ctx context.Context, field string) bool {
	lc := extractLogContext(ctx)
	switch field {
	case "build.id":
		return lc.BuildID != ""
	case "project":
		return lc.Project != ""
	case "version":
		return lc.Version != ""
	case "stage":
		return lc.Stage != ""
	case "task.id":
		return lc.TaskID != ""
	default:
		return false
	}
}
