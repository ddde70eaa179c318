package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerWritesServiceMetadataAndTraceID(t *testing.T) {
	var buf bytes.Buffer
	traceFn := func(context.Context) string { return "trace-123" }

	log := NewWithMetadata(&buf, LevelDebug, "notifier", traceFn, Events{}, map[string]string{
		"hostname": "host-a",
		"pod":      "",
	})
	log.Info(context.Background(), "hello", "tenant", "t1")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", lines[0]["msg"])
	assert.Equal(t, "notifier", lines[0]["service"])
	assert.Equal(t, "host-a", lines[0]["hostname"])
	assert.Equal(t, "trace-123", lines[0]["trace_id"])
	assert.Equal(t, "t1", lines[0]["tenant"])
	assert.NotContains(t, lines[0], "pod")
	assert.Contains(t, lines[0]["file"], "logger_test.go")
}

func TestLoggerRespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "notifier", nil)

	log.Debug(context.Background(), "dropped")
	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
}

func TestLoggerErrorEventFires(t *testing.T) {
	var buf bytes.Buffer
	var got Record
	events := Events{Error: func(_ context.Context, r Record) { got = r }}

	log := NewWithEvents(&buf, LevelDebug, "notifier", nil, events)
	log.Error(context.Background(), "boom", "selector", "send-sms-notification")

	assert.Equal(t, "boom", got.Message)
	assert.Equal(t, LevelError, got.Level)
	assert.Equal(t, "send-sms-notification", got.Attributes["selector"])
}

func TestLoggerContextAccumulatesAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, LevelDebug, "notifier", nil).With("component", "dispatcher")

	lc := NewLoggerContext(base)
	lc.Add("tenant", "t1")
	lc.Add("selector", "post-sms-configuration")
	lc.Info(context.Background(), "dispatched", "handlers", 2)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "dispatcher", lines[0]["component"])
	assert.Equal(t, "t1", lines[0]["tenant"])
	assert.Equal(t, "post-sms-configuration", lines[0]["selector"])
	assert.EqualValues(t, 2, lines[0]["handlers"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}
