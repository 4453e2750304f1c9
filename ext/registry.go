package ext

import (
	"context"
	"log/slog"

	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and fans lifecycle events out to
// them. Hooks are type-cached at registration, so emit calls only visit
// extensions implementing the relevant interface.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	statusChanged    []entry[StatusChanged]
	tokenAdmitted    []entry[TokenAdmitted]
	tokenCalled      []entry[TokenCalled]
	serviceStarted   []entry[ServiceStarted]
	serviceCompleted []entry[ServiceCompleted]
	tokenCancelled   []entry[TokenCancelled]
	tokenExpired     []entry[TokenExpired]
	queueChanged     []entry[QueueChanged]
	modelTrained     []entry[ModelTrained]
	shutdown         []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

func cache[H any](list []entry[H], name string, e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name, h})
	}
	return list
}

// Register adds an extension. Extensions are notified in registration
// order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	r.statusChanged = cache(r.statusChanged, name, e)
	r.tokenAdmitted = cache(r.tokenAdmitted, name, e)
	r.tokenCalled = cache(r.tokenCalled, name, e)
	r.serviceStarted = cache(r.serviceStarted, name, e)
	r.serviceCompleted = cache(r.serviceCompleted, name, e)
	r.tokenCancelled = cache(r.tokenCancelled, name, e)
	r.tokenExpired = cache(r.tokenExpired, name, e)
	r.queueChanged = cache(r.queueChanged, name, e)
	r.modelTrained = cache(r.modelTrained, name, e)
	r.shutdown = cache(r.shutdown, name, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Token event emitters
// ──────────────────────────────────────────────────

// EmitStatusChanged notifies all extensions that implement StatusChanged.
func (r *Registry) EmitStatusChanged(ctx context.Context, c *event.StatusChange) {
	for _, e := range r.statusChanged {
		if err := e.hook.OnStatusChanged(ctx, c); err != nil {
			r.logHookError("OnStatusChanged", e.name, err)
		}
	}
}

// EmitTokenAdmitted notifies all extensions that implement TokenAdmitted.
func (r *Registry) EmitTokenAdmitted(ctx context.Context, t *token.Token) {
	for _, e := range r.tokenAdmitted {
		if err := e.hook.OnTokenAdmitted(ctx, t); err != nil {
			r.logHookError("OnTokenAdmitted", e.name, err)
		}
	}
}

// EmitTokenCalled notifies all extensions that implement TokenCalled.
func (r *Registry) EmitTokenCalled(ctx context.Context, t *token.Token, serverID id.StaffID) {
	for _, e := range r.tokenCalled {
		if err := e.hook.OnTokenCalled(ctx, t, serverID); err != nil {
			r.logHookError("OnTokenCalled", e.name, err)
		}
	}
}

// EmitServiceStarted notifies all extensions that implement ServiceStarted.
func (r *Registry) EmitServiceStarted(ctx context.Context, t *token.Token) {
	for _, e := range r.serviceStarted {
		if err := e.hook.OnServiceStarted(ctx, t); err != nil {
			r.logHookError("OnServiceStarted", e.name, err)
		}
	}
}

// EmitServiceCompleted notifies all extensions that implement ServiceCompleted.
func (r *Registry) EmitServiceCompleted(ctx context.Context, t *token.Token, rec *history.Record) {
	for _, e := range r.serviceCompleted {
		if err := e.hook.OnServiceCompleted(ctx, t, rec); err != nil {
			r.logHookError("OnServiceCompleted", e.name, err)
		}
	}
}

// EmitTokenCancelled notifies all extensions that implement TokenCancelled.
func (r *Registry) EmitTokenCancelled(ctx context.Context, t *token.Token, from token.State) {
	for _, e := range r.tokenCancelled {
		if err := e.hook.OnTokenCancelled(ctx, t, from); err != nil {
			r.logHookError("OnTokenCancelled", e.name, err)
		}
	}
}

// EmitTokenExpired notifies all extensions that implement TokenExpired.
func (r *Registry) EmitTokenExpired(ctx context.Context, t *token.Token) {
	for _, e := range r.tokenExpired {
		if err := e.hook.OnTokenExpired(ctx, t); err != nil {
			r.logHookError("OnTokenExpired", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitQueueChanged notifies all extensions that implement QueueChanged.
func (r *Registry) EmitQueueChanged(ctx context.Context, q *queue.Queue) {
	for _, e := range r.queueChanged {
		if err := e.hook.OnQueueChanged(ctx, q); err != nil {
			r.logHookError("OnQueueChanged", e.name, err)
		}
	}
}

// EmitModelTrained notifies all extensions that implement ModelTrained.
func (r *Registry) EmitModelTrained(ctx context.Context, res estimator.TrainResult) {
	for _, e := range r.modelTrained {
		if err := e.hook.OnModelTrained(ctx, res); err != nil {
			r.logHookError("OnModelTrained", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a hook returns an error. Hook errors
// are never propagated; a state change is never rolled back because a
// listener failed.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
