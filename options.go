package smartqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Option configures a Runtime.
type Option func(*Runtime) error

// Storer is the lifecycle subset of the composite store. The full
// interface (store.Store) lives in a subpackage to avoid import cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// schedulerRunner is the maintenance scheduler lifecycle.
type schedulerRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is the extension shutdown hook.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Runtime holds the shared collaborators of a SmartQueue deployment:
// configuration, logger, store and clock. The engine package builds the
// scheduling service on top of it.
type Runtime struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	clock      Clock
	scheduler  schedulerRunner
	extensions extensionEmitter

	started bool
}

// New creates a Runtime with the given options.
func New(opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		config: DefaultConfig(),
		logger: slog.Default(),
		clock:  SystemClock{},
	}
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func (rt *Runtime) Logger() *slog.Logger { return rt.logger }
func (rt *Runtime) Store() Storer        { return rt.store }
func (rt *Runtime) Config() Config       { return rt.config }
func (rt *Runtime) Clock() Clock         { return rt.clock }

// Now returns the current time from the runtime clock.
func (rt *Runtime) Now() time.Time { return rt.clock.Now() }

// SetScheduler sets the maintenance scheduler (called by engine.Build).
func (rt *Runtime) SetScheduler(s schedulerRunner) { rt.scheduler = s }

// SetExtensions sets the extension emitter (called by engine.Build).
func (rt *Runtime) SetExtensions(e extensionEmitter) { rt.extensions = e }

// Start starts background maintenance.
func (rt *Runtime) Start(ctx context.Context) error {
	if rt.store == nil {
		return ErrNoStore
	}
	if rt.scheduler != nil {
		if err := rt.scheduler.Start(ctx); err != nil {
			return err
		}
	}
	rt.started = true
	return nil
}

// Stop stops maintenance, notifies extensions and closes the store.
func (rt *Runtime) Stop(ctx context.Context) error {
	if rt.scheduler != nil && rt.started {
		if err := rt.scheduler.Stop(ctx); err != nil {
			rt.logger.Error("scheduler stop error", slog.String("error", err.Error()))
		}
	}
	rt.started = false
	if rt.extensions != nil {
		rt.extensions.EmitShutdown(ctx)
	}
	if rt.store != nil {
		return rt.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(rt *Runtime) error {
		rt.config = cfg
		return nil
	}
}

// WithDefaultCapacity sets the capacity applied to queues created without one.
func WithDefaultCapacity(n int) Option {
	return func(rt *Runtime) error {
		if n <= 0 {
			return errors.New("smartqueue: default capacity must be positive")
		}
		rt.config.DefaultCapacity = n
		return nil
	}
}

// WithExpiryGrace sets how long a called token may wait before expiring.
func WithExpiryGrace(d time.Duration) Option {
	return func(rt *Runtime) error {
		rt.config.ExpiryGrace = d
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) error {
		rt.logger = l
		return nil
	}
}

// WithStore sets the persistence backend. Typically a store.Store.
func WithStore(s Storer) Option {
	return func(rt *Runtime) error {
		rt.store = s
		return nil
	}
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(rt *Runtime) error {
		rt.clock = c
		return nil
	}
}
