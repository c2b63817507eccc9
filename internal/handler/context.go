package handler

import (
	"context"

	tele "gopkg.in/telebot.v3"
)

const requestContextKey = "request_ctx"

// WithRequestContext attaches ctx to the update.
func WithRequestContext(c tele.Context, ctx context.Context) {
	c.Set(requestContextKey, ctx)
}

// RequestContext returns the per-update context, or context.Background()
// when none was attached.
func RequestContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(requestContextKey).(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}
