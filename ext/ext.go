package ext

import (
	"context"

	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Token lifecycle hooks
// ──────────────────────────────────────────────────

// StatusChanged is called after every token transition with the queue's
// position snapshot.
type StatusChanged interface {
	OnStatusChanged(ctx context.Context, c *event.StatusChange) error
}

// TokenAdmitted is called after a token joins a queue.
type TokenAdmitted interface {
	OnTokenAdmitted(ctx context.Context, t *token.Token) error
}

// TokenCalled is called after a server calls a token.
type TokenCalled interface {
	OnTokenCalled(ctx context.Context, t *token.Token, serverID id.StaffID) error
}

// ServiceStarted is called when service of a token begins.
type ServiceStarted interface {
	OnServiceStarted(ctx context.Context, t *token.Token) error
}

// ServiceCompleted is called after service finishes. rec is nil when the
// history record could not be written.
type ServiceCompleted interface {
	OnServiceCompleted(ctx context.Context, t *token.Token, rec *history.Record) error
}

// TokenCancelled is called after a token is cancelled.
type TokenCancelled interface {
	OnTokenCancelled(ctx context.Context, t *token.Token, from token.State) error
}

// TokenExpired is called after a called token expires.
type TokenExpired interface {
	OnTokenExpired(ctx context.Context, t *token.Token) error
}

// ──────────────────────────────────────────────────
// Other hooks
// ──────────────────────────────────────────────────

// QueueChanged is called after a queue is created or reconfigured.
type QueueChanged interface {
	OnQueueChanged(ctx context.Context, q *queue.Queue) error
}

// ModelTrained is called after a training run, fitted or skipped.
type ModelTrained interface {
	OnModelTrained(ctx context.Context, res estimator.TrainResult) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
