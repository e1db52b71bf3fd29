package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	l := New(Options{Env: "dev", App: "reportd"})
	require.NotNil(t, l)
	require.NoError(t, Close(l))
}

func TestNew_WithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "reportd.log")
	l := New(Options{Env: "prod", App: "reportd", File: file})
	require.NotNil(t, l)

	l.Info("hello")
	require.NoError(t, Close(l))
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, levelFromString("debug"))
	assert.Equal(t, slog.LevelInfo, levelFromString("info"))
	assert.Equal(t, slog.LevelWarn, levelFromString("WARN"))
	assert.Equal(t, slog.LevelError, levelFromString("error"))
	assert.Equal(t, slog.LevelInfo, levelFromString("bogus"))
	assert.Equal(t, slog.LevelInfo, levelFromString(""))
}

func redactedRecord(t *testing.T, attrs ...slog.Attr) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	h := NewRedactingHandler(inner, sensitiveKeys)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0)
	r.AddAttrs(attrs...)
	require.NoError(t, h.Handle(context.Background(), r))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestRedactingHandler_MasksSensitiveKeys(t *testing.T) {
	m := redactedRecord(t,
		slog.String("password", "hunter2"),
		slog.String("smtp_password", "hunter2"),
		slog.String("api_key", "sk-12345"),
		slog.String("recipient", "ops@example.com"),
	)

	assert.Equal(t, "[REDACTED]", m["password"])
	assert.Equal(t, "[REDACTED]", m["smtp_password"], "substring match on the key")
	assert.Equal(t, "[REDACTED]", m["api_key"])
	assert.Equal(t, "ops@example.com", m["recipient"], "non-sensitive keys pass through")
}

func TestRedactingHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewRedactingHandler(slog.NewJSONHandler(&buf, nil), sensitiveKeys)
	l := slog.New(h).With(slog.String("token", "abcdef"))

	l.Info("msg")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "[REDACTED]", m["token"])
}

func TestMultiHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewJSONHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	l := slog.New(h)

	l.Info("only first")
	assert.Contains(t, a.String(), "only first")
	assert.Empty(t, b.String(), "second handler filters below error")

	l.Error("both")
	assert.Contains(t, a.String(), "both")
	assert.Contains(t, b.String(), "both")
}
