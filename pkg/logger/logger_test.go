package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &out))
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"warn+2", slog.LevelWarn + 2},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("storefront", "warn", &buf)

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	out := lastLine(t, &buf)
	assert.Equal(t, "kept", out["msg"])
	assert.Equal(t, "storefront", out["service"])
	assert.NotContains(t, out, "source", "source is only added at debug")
}

func TestNewWithWriter_DebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("storefront", "debug", &buf).Debug("here")

	assert.Contains(t, lastLine(t, &buf), "source")
}

func TestWithContext_BindsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("storefront", "info", &buf)

	ctx := WithCorrelationID(spanContext(t), "corr-1")
	ctx = WithSessionID(ctx, "sess-1")
	WithContext(ctx, l).Info("bound")

	out := lastLine(t, &buf)
	assert.Equal(t, "corr-1", out["correlation_id"])
	assert.Equal(t, "sess-1", out["session_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", out["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", out["span_id"])
}

func TestWithContext_EmptyContextAddsNothing(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("storefront", "info", &buf)

	WithContext(context.Background(), l).Info("plain")

	out := lastLine(t, &buf)
	for _, key := range []string{"correlation_id", "session_id", "trace_id", "span_id"} {
		assert.NotContains(t, out, key)
	}
}

func TestContextHandler_AddsFieldsFromLogContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("storefront", "info", &buf)

	ctx := WithSessionID(WithCorrelationID(spanContext(t), "corr-2"), "sess-2")
	l.InfoContext(ctx, "from context")

	out := lastLine(t, &buf)
	assert.Equal(t, "corr-2", out["correlation_id"])
	assert.Equal(t, "sess-2", out["session_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", out["trace_id"])
}

func TestContextHandler_DoesNotRepeatFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("storefront", "info", &buf)
	ctx := WithSessionID(WithCorrelationID(context.Background(), "corr-3"), "sess-3")

	// Bound on the logger.
	WithContext(ctx, l).InfoContext(ctx, "bound")
	assert.Equal(t, 1, strings.Count(buf.String(), `"correlation_id"`))
	assert.Equal(t, 1, strings.Count(buf.String(), `"session_id"`))

	// Passed on the record.
	buf.Reset()
	l.InfoContext(ctx, "explicit", slog.String("session_id", "sess-3"))
	assert.Equal(t, 1, strings.Count(buf.String(), `"session_id"`))
	assert.Equal(t, 1, strings.Count(buf.String(), `"correlation_id"`))
}

func TestContextHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("storefront", "info", &buf).WithGroup("mutation")

	l.InfoContext(WithCorrelationID(context.Background(), "corr-4"), "grouped", slog.String("key", "add_lines"))

	out := lastLine(t, &buf)
	group, ok := out["mutation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "add_lines", group["key"])
	assert.Equal(t, "corr-4", group["correlation_id"])
}

func TestFromContext(t *testing.T) {
	l := NewWithWriter("storefront", "info", &bytes.Buffer{})

	assert.Same(t, l, FromContext(NewContext(context.Background(), l)))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationIDFromContext(ctx))
	assert.Empty(t, SessionIDFromContext(ctx))

	ctx = WithSessionID(WithCorrelationID(ctx, "corr"), "sess")
	assert.Equal(t, "corr", CorrelationIDFromContext(ctx))
	assert.Equal(t, "sess", SessionIDFromContext(ctx))
}
