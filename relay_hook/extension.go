package relayhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/ext"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/stream"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*Extension)(nil)
	_ ext.StatusChanged = (*Extension)(nil)
	_ ext.QueueChanged  = (*Extension)(nil)
	_ ext.ModelTrained  = (*Extension)(nil)
	_ ext.Shutdown      = (*Extension)(nil)
)

// Extension relays lifecycle events to Kafka through a durable outbox.
// Hooks only append to the outbox; a [Dispatcher] publishes in the
// background. Messages are keyed by queue ID so one queue's events keep
// their order within a partition.
type Extension struct {
	outbox     *Outbox
	dispatcher *Dispatcher
	enabled    map[stream.EventType]bool // nil = all enabled
	logger     *slog.Logger
}

// New creates an Extension draining outbox into publisher.
func New(outbox *Outbox, publisher Publisher, opts ...Option) *Extension {
	h := &Extension{outbox: outbox, logger: slog.Default()}
	h.dispatcher = newDispatcher(outbox, publisher, h.logger)
	for _, opt := range opts {
		opt(h)
	}
	h.dispatcher.logger = h.logger
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "relay-hook" }

// Dispatcher returns the background publisher.
func (h *Extension) Dispatcher() *Dispatcher { return h.dispatcher }

// Start starts background delivery.
func (h *Extension) Start(ctx context.Context) error { return h.dispatcher.Start(ctx) }

// OnStatusChanged implements ext.StatusChanged.
func (h *Extension) OnStatusChanged(_ context.Context, c *event.StatusChange) error {
	return h.append(c.QueueID.String(), stream.TokenEvent(c))
}

// OnQueueChanged implements ext.QueueChanged.
func (h *Extension) OnQueueChanged(_ context.Context, q *queue.Queue) error {
	return h.append(q.ID.String(), stream.QueueEvent(q))
}

// OnModelTrained implements ext.ModelTrained.
func (h *Extension) OnModelTrained(_ context.Context, res estimator.TrainResult) error {
	return h.append("estimator", stream.ModelEvent(res, h.dispatcher.now().UTC()))
}

// OnShutdown stops the dispatcher after one last delivery pass.
func (h *Extension) OnShutdown(ctx context.Context) error {
	if err := h.dispatcher.Stop(ctx); err != nil {
		return err
	}
	_, _, err := h.dispatcher.Flush(ctx)
	return err
}

func (h *Extension) append(key string, evt *stream.Event) error {
	if h.enabled != nil && !h.enabled[evt.Type] {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("relayhook: encode %s: %w", evt.Type, err)
	}
	if _, err := h.outbox.Append([]byte(key), payload); err != nil {
		return err
	}
	return nil
}
