package logging

import (
	"context"
	"errors"
	"log/slog"

	"studypair/internal/services"
)

// teeHandler writes every record to each sink that accepts its level. It
// stamps records with the batch ID and with the batch and study carried by
// the record's context, so callers using the *Context logging methods get
// correlation fields without building child loggers.
type teeHandler struct {
	sinks   []slog.Handler
	batchID string
}

func newTeeHandler(batchID string, sinks ...slog.Handler) slog.Handler {
	live := make([]slog.Handler, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return NoopHandler{}
	}
	return &teeHandler{sinks: live, batchID: batchID}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(h.correlation(ctx)...)

	var errs []error
	last := len(h.sinks) - 1
	for i, s := range h.sinks {
		if !s.Enabled(ctx, record.Level) {
			continue
		}
		r := record
		if i < last {
			r = record.Clone()
		}
		if err := s.Handle(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *teeHandler) correlation(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	batchID := h.batchID
	if batchID == "" && ctx != nil {
		batchID, _ = services.BatchIDFromContext(ctx)
	}
	if batchID != "" {
		attrs = append(attrs, slog.String(FieldBatchID, batchID))
	}
	if ctx != nil {
		if uid, ok := services.StudyUIDFromContext(ctx); ok {
			attrs = append(attrs, slog.String(FieldStudyUID, uid))
		}
	}
	return attrs
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.each(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (h *teeHandler) each(fn func(slog.Handler) slog.Handler) *teeHandler {
	next := make([]slog.Handler, len(h.sinks))
	for i, s := range h.sinks {
		next[i] = fn(s)
	}
	return &teeHandler{sinks: next, batchID: h.batchID}
}
