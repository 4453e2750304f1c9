// Package middleware provides composable middleware for engine operations.
// Middleware wraps each scheduling call synchronously and can modify it
// (recover from panics, check the caller, log, add tracing, etc.).
package middleware

import (
	"context"
)

// Handler is the terminal function that performs the operation.
type Handler func(ctx context.Context) error

// Op describes the engine operation being executed.
type Op struct {
	// Name is the operation name, e.g. "admit_token" or "call_next".
	Name string

	// QueueID is the queue the operation targets, if any.
	QueueID string

	// TokenID is the token the operation targets, if any.
	TokenID string

	// StaffOnly marks operations reserved for serving roles.
	StaffOnly bool
}

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the operation being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, op *Op, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// The first middleware in the list is the outermost wrapper.
//
//	Chain(logging, recover, actor) runs as logging → recover → actor → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, op, prev)
			}
		}
		return h(ctx)
	}
}

func (op *Op) attrs() []any {
	attrs := []any{"op", op.Name}
	if op.QueueID != "" {
		attrs = append(attrs, "queue_id", op.QueueID)
	}
	if op.TokenID != "" {
		attrs = append(attrs, "token_id", op.TokenID)
	}
	return attrs
}
