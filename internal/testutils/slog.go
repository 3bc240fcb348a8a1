// Package testutils provides small test-only helpers shared across
// packages.
package testutils

import (
	"context"
	"log/slog"
	"sync"
)

// LogEntry is one captured log record flattened to a key/value map. The
// record's level and message are stored under "level" and "message";
// attrs added through WithAttrs and WithGroup keep their qualified keys.
type LogEntry map[string]any

// CaptureHandler is a memory-backed slog.Handler for asserting on log
// output in tests. All records pass Enabled regardless of level. Safe for
// concurrent use; handlers derived with WithAttrs and WithGroup share the
// same entry log.
type CaptureHandler struct {
	sink  *captureSink
	attrs []slog.Attr
	group string
}

type captureSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (s *captureSink) append(entry LogEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

// NewCaptureHandler creates an empty capture handler.
func NewCaptureHandler() *CaptureHandler {
	return &CaptureHandler{sink: &captureSink{}}
}

func (h *CaptureHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

// Enabled satisfies slog.Handler.
func (h *CaptureHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// Handle satisfies slog.Handler.
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := make(LogEntry, r.NumAttrs()+len(h.attrs)+2)
	entry["level"] = r.Level.String()
	entry["message"] = r.Message
	for _, attr := range h.attrs {
		entry[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(attr slog.Attr) bool {
		entry[h.qualify(attr.Key)] = attr.Value.Any()
		return true
	})

	h.sink.append(entry)
	return nil
}

// WithAttrs satisfies slog.Handler.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := *h
	derived.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	derived.attrs = append(derived.attrs, h.attrs...)
	for _, attr := range attrs {
		derived.attrs = append(derived.attrs, slog.Attr{
			Key:   h.qualify(attr.Key),
			Value: attr.Value,
		})
	}
	return &derived
}

// WithGroup satisfies slog.Handler.
func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	derived := *h
	derived.group = h.qualify(name)
	return &derived
}

// Entries returns a copy of all captured log entries in arrival order.
func (h *CaptureHandler) Entries() []LogEntry {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()

	out := make([]LogEntry, len(h.sink.entries))
	copy(out, h.sink.entries)
	return out
}

// Find returns the first captured entry with the given message.
func (h *CaptureHandler) Find(message string) (LogEntry, bool) {
	for _, entry := range h.Entries() {
		if entry["message"] == message {
			return entry, true
		}
	}
	return nil, false
}

// Clear resets the captured entries.
func (h *CaptureHandler) Clear() {
	h.sink.mu.Lock()
	h.sink.entries = nil
	h.sink.mu.Unlock()
}
