// Package logger builds the slog logger used by reportd: a tinted
// console handler plus an optional JSON file handler behind log
// rotation, with credential redaction applied to both.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// sensitiveKeys are attribute keys whose values are never logged.
// Email credentials flow through this service, so "password" and
// "recipient" join the usual token/secret suspects.
var sensitiveKeys = []string{"password", "token", "secret", "api_key", "credential"}

// Options defines parameters for logger creation.
type Options struct {
	Env          string // "dev" or "prod"
	ConsoleLevel string // level for console output (default: info)
	FileLevel    string // level for file output (default: debug)
	File         string // file path; empty disables the file handler
	App          string
}

var closers sync.Map

// New creates a configured slog.Logger instance.
func New(o Options) *slog.Logger {
	consoleLvl := levelFromString(o.ConsoleLevel)
	fileLvl := levelFromString(o.FileLevel)

	timeFormat := time.RFC3339
	if o.Env == "dev" {
		timeFormat = time.Kitchen
	}

	var handlers []slog.Handler
	var console slog.Handler = tint.NewHandler(os.Stdout, &tint.Options{
		Level:      consoleLvl,
		TimeFormat: timeFormat,
	})
	handlers = append(handlers, NewRedactingHandler(console, sensitiveKeys))

	var closer func() error
	if o.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		closer = fileWriter.Close
		var file slog.Handler = slog.NewJSONHandler(fileWriter, &slog.HandlerOptions{Level: fileLvl})
		handlers = append(handlers, NewRedactingHandler(file, sensitiveKeys))
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = NewMultiHandler(handlers...)
	}

	l := slog.New(h).With(
		slog.String("app", o.App),
		slog.String("env", o.Env),
	)
	if closer != nil {
		closers.Store(l, closer)
	}
	return l
}

// Close releases the file handler resources for a logger created by New.
func Close(logger *slog.Logger) error {
	if c, ok := closers.Load(logger); ok {
		closers.Delete(logger)
		return c.(func() error)()
	}
	return nil
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactingHandler masks sensitive log attributes.
type RedactingHandler struct {
	inner slog.Handler
	keys  []string
}

// NewRedactingHandler wraps a handler with redaction of sensitive fields.
// A field is redacted when its lowercased key contains any of the given
// fragments ("smtp_password" matches "password").
func NewRedactingHandler(inner slog.Handler, sensitive []string) *RedactingHandler {
	keys := make([]string, len(sensitive))
	for i, k := range sensitive {
		keys[i] = strings.ToLower(k)
	}
	return &RedactingHandler{inner: inner, keys: keys}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	var attrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool { attrs = append(attrs, a); return true })
	nr.AddAttrs(h.sanitize(attrs...)...)
	return h.inner.Handle(ctx, nr)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithAttrs(h.sanitize(attrs...)), keys: h.keys}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), keys: h.keys}
}

func (h *RedactingHandler) sanitize(attrs ...slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		if h.isSensitive(a.Key) {
			out = append(out, slog.String(a.Key, "[REDACTED]"))
			continue
		}
		out = append(out, a)
	}
	return out
}

func (h *RedactingHandler) isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, fragment := range h.keys {
		if strings.Contains(k, fragment) {
			return true
		}
	}
	return false
}

// MultiHandler fans a record out to multiple handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a handler that writes to all given handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled implements slog.Handler.
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: handlers}
}

// WithGroup implements slog.Handler.
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: handlers}
}
