package middleware

import (
	"context"
	"time"
)

// Timeout returns middleware that bounds every operation with d. A
// non-positive d disables the deadline. An existing earlier deadline on
// the context is kept.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *Op, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
