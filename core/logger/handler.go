package logger

import (
	"context"
	"log/slog"
)

// contextHandler injects request metadata carried in context into every record
// so call sites do not repeat rid/user/chat attributes by hand.
type contextHandler struct {
	inner slog.Handler
}

func newContextHandler(inner slog.Handler) *contextHandler {
	return &contextHandler{inner: inner}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if rid := RIDFrom(ctx); rid != "" {
		rec.AddAttrs(slog.String("rid", CompactRID(rid)))
	}
	if userID := UserIDFrom(ctx); userID != 0 {
		rec.AddAttrs(slog.Int64("user_id", userID))
	}
	if chatID := ChatIDFrom(ctx); chatID != 0 {
		rec.AddAttrs(slog.Int64("chat_id", chatID))
	}
	if handler := HandlerFrom(ctx); handler != "" {
		rec.AddAttrs(slog.String("handler", handler))
	}
	return h.inner.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{inner: h.inner.WithGroup(name)}
}
