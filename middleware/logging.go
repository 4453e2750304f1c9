package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs each operation's outcome. Successful
// operations log at debug level; failures log at warn with the error.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		start := time.Now()
		err := next(ctx)
		attrs := append(op.attrs(), slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			logger.Warn("operation failed", append(attrs, slog.String("error", err.Error()))...)
		} else {
			logger.Debug("operation completed", attrs...)
		}
		return err
	}
}
