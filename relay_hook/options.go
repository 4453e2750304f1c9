package relayhook

import (
	"log/slog"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/backoff"
	"github.com/Jiyabhaviksadaria/smartqueue/stream"
)

// Option configures an Extension.
type Option func(*Extension)

// WithEvents restricts the relay to the listed event types. By default
// every event is relayed.
func WithEvents(types ...stream.EventType) Option {
	return func(h *Extension) {
		h.enabled = make(map[stream.EventType]bool, len(types))
		for _, t := range types {
			h.enabled[t] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Extension) { h.logger = l }
}

// WithBackoff sets the delay between delivery attempts of one entry.
func WithBackoff(s backoff.Strategy) Option {
	return func(h *Extension) { h.dispatcher.strategy = s }
}

// WithMaxAttempts sets how many failed deliveries park an entry as failed.
func WithMaxAttempts(n int) Option {
	return func(h *Extension) { h.dispatcher.maxAttempts = n }
}

// WithInterval sets how often the dispatcher polls the outbox.
func WithInterval(d time.Duration) Option {
	return func(h *Extension) { h.dispatcher.interval = d }
}

// WithBatchSize caps the entries handled per pass.
func WithBatchSize(n int) Option {
	return func(h *Extension) { h.dispatcher.batchSize = n }
}

// WithClock sets the dispatcher's time source.
func WithClock(now func() time.Time) Option {
	return func(h *Extension) { h.dispatcher.now = now }
}
