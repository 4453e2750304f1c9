package middleware

import (
	"context"
	"fmt"

	"github.com/Jiyabhaviksadaria/smartqueue"
)

// RequireStaff returns middleware that rejects staff-only operations when
// the caller on the context is not a serving role. Calls without an actor
// are internal (scheduler, restore) and pass through.
func RequireStaff() Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		if !op.StaffOnly {
			return next(ctx)
		}
		a, ok := smartqueue.ActorFromContext(ctx)
		if ok && !a.Staff() {
			return fmt.Errorf("%s as %q: %w", op.Name, a.Role, smartqueue.ErrForbidden)
		}
		return next(ctx)
	}
}
