package logger

import (
	"context"
	"log/slog"

	"github.com/nao1215/ordermesh/pkg/requestid"
)

// RequestIDHandler はコンテキストのリクエストIDをrequest_id属性として付与するslog.Handler。
type RequestIDHandler struct {
	inner slog.Handler
}

// NewRequestIDHandler はinnerをラップしたハンドラを返す。
func NewRequestIDHandler(inner slog.Handler) *RequestIDHandler {
	return &RequestIDHandler{inner: inner}
}

// Handle はリクエストIDを付与してからinnerに委譲する。
func (h *RequestIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := requestid.FromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.inner.Handle(ctx, r)
}

// Enabled はinnerに委譲する。
func (h *RequestIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// WithAttrs はinnerに委譲する。
func (h *RequestIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RequestIDHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup はinnerに委譲する。
func (h *RequestIDHandler) WithGroup(name string) slog.Handler {
	return &RequestIDHandler{inner: h.inner.WithGroup(name)}
}
