// Package log builds the application's slog loggers. Crawls routinely
// carry session cookies and auth headers in configuration, so every
// logger wraps a redacting handler that masks credential-looking
// attributes before they reach the output.
package log

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// MaskValue replaces redacted attribute values.
const MaskValue = "***REDACTED***"

// sensitiveKeywords flag an attribute as worth masking when its key
// contains one of them. Deliberately short: crawler logs carry URLs and
// paths, not arbitrary payloads, so a keyword scan is enough.
var sensitiveKeywords = []string{
	"cookie", "authorization", "password", "secret", "token", "apikey", "api_key", "api-key",
}

// RedactingHandler wraps an slog.Handler and masks attributes whose
// keys look credential-like. It composes with any underlying handler,
// so text and JSON output both get redaction for free.
type RedactingHandler struct {
	handler slog.Handler
}

// NewRedactingHandler wraps handler with attribute redaction.
// A nil handler falls back to slog.Default's handler.
func NewRedactingHandler(handler slog.Handler) *RedactingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &RedactingHandler{handler: handler}
}

// Enabled delegates to the underlying handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks sensitive attributes and forwards the record.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(redactAttr(a))
		return true
	})
	return h.handler.Handle(ctx, masked)
}

// WithAttrs returns a handler with the given (redacted) attributes added.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(redacted)}
}

// WithGroup returns a handler with the given group name.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			redacted[i] = redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}

	key := strings.ToLower(a.Key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return slog.String(a.Key, MaskValue)
		}
	}
	return a
}

// NewLogger creates a text logger writing to w. Verbose enables debug
// level; otherwise only info and above are emitted.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactingHandler(handler))
}
