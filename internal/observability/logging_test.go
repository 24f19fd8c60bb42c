package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithBuildID(t *testing.T) {
	ctx := WithBuildID(context.Background(), 123)

	lc := GetContext(ctx)
	if lc.BuildID != "123" {
		t.Errorf("expected 123, got %s", lc.BuildID)
	}
}

func TestMultipleContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithBuildID(ctx, 1)
	ctx = WithProject(ctx, "pip")
	ctx = WithVersion(ctx, "latest")
	ctx = WithStage(ctx, "setup")
	ctx = WithTaskID(ctx, "task-1")

	lc := GetContext(ctx)
	if lc.BuildID != "1" || lc.Project != "pip" || lc.Version != "latest" || lc.Stage != "setup" || lc.TaskID != "task-1" {
		t.Errorf("unexpected log context: %+v", lc)
	}
}

func TestOverwriteContextValue(t *testing.T) {
	ctx := WithStage(context.Background(), "setup")
	ctx = WithStage(ctx, "build")

	if lc := GetContext(ctx); lc.Stage != "build" {
		t.Errorf("expected build, got %s", lc.Stage)
	}
}

func TestHasContextValue(t *testing.T) {
	ctx := WithBuildID(context.Background(), 9)
	ctx = WithProject(ctx, "pip")

	tests := []struct {
		field    string
		expected bool
	}{
		{"build.id", true},
		{"project", true},
		{"version", false},
		{"stage", false},
		{"task.id", false},
		{"unknown", false},
	}

	for _, tt := range tests {
		if HasContextValue(ctx, tt.field) != tt.expected {
			t.Errorf("HasContextValue(%s) expected %v", tt.field, tt.expected)
		}
	}
}

func TestInfoContextIncludesContextFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := WithBuildID(context.Background(), 77)
	ctx = WithProject(ctx, "pip")

	InfoContext(ctx, "test message", slog.String("extra", "value"))

	output := buf.String()
	for _, want := range []string{`"build.id":"77"`, `"project":"pip"`, "test message", `"extra":"value"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in log output: %s", want, output)
		}
	}
}

func TestDebugContextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	DebugContext(WithStage(context.Background(), "setup"), "hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output for debug at info level, got %s", buf.String())
	}
}
