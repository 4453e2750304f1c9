// Package engine wires the SmartQueue subsystems together: queue lines,
// token lifecycle, wait estimation, history, extensions, middleware and
// maintenance jobs. It provides the scheduling operations consumed by the
// transport layer.
//
// This package exists to break the import cycle: the root smartqueue
// package defines Entity and the errors (imported by token, queue, etc.)
// and so cannot import those packages back. The engine package sits above
// all subsystem packages and below the application layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/cron"
	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/ext"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	mw "github.com/Jiyabhaviksadaria/smartqueue/middleware"
	"github.com/Jiyabhaviksadaria/smartqueue/observability"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/sequence"
	"github.com/Jiyabhaviksadaria/smartqueue/store"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

const instrumentationName = "github.com/Jiyabhaviksadaria/smartqueue"

// Engine is the scheduling service. Use Build() to create one from a
// Runtime.
type Engine struct {
	rt         *smartqueue.Runtime
	store      store.Store
	extensions *ext.Registry
	lines      *queue.Manager
	estimator  *estimator.Estimator
	recorder   *history.Recorder
	policy     token.Policy
	seq        *sequence.Sequencer
	numbers    token.NumberAllocator
	scheduler  *cron.Scheduler
	chain      mw.Middleware
	mws        []mw.Middleware
	logger     *slog.Logger

	restoreConcurrency int

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain. User middleware
// runs inside the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithPolicy sets the priority derivation constants.
func WithPolicy(p token.Policy) Option {
	return func(eng *Engine) {
		eng.policy = p
	}
}

// WithEstimator sets the wait estimator. A fresh untrained estimator is
// used when unset.
func WithEstimator(est *estimator.Estimator) Option {
	return func(eng *Engine) {
		eng.estimator = est
	}
}

// WithNumberAllocator sets the token number source, e.g. the Redis store
// when several engines share one backend. The in-process sequencer is used
// when unset.
func WithNumberAllocator(a token.NumberAllocator) Option {
	return func(eng *Engine) {
		eng.numbers = a
	}
}

// WithRestoreConcurrency bounds how many queue lines Restore rebuilds at
// once.
func WithRestoreConcurrency(n int) Option {
	return func(eng *Engine) {
		eng.restoreConcurrency = n
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// Both the metrics middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Runtime.
// The Runtime's store must implement store.Store.
func Build(rt *smartqueue.Runtime, opts ...Option) (*Engine, error) {
	logger := rt.Logger()

	if rt.Store() == nil {
		return nil, smartqueue.ErrNoStore
	}
	s, ok := rt.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("smartqueue: store %T does not implement store.Store", rt.Store())
	}

	eng := &Engine{
		rt:                 rt,
		store:              s,
		extensions:         ext.NewRegistry(logger),
		lines:              queue.NewManager(),
		policy:             token.DefaultPolicy(),
		seq:                sequence.New(0),
		logger:             logger,
		restoreConcurrency: 8,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.estimator == nil {
		eng.estimator = estimator.New(estimator.WithLogger(logger))
	}
	if eng.numbers == nil {
		eng.numbers = eng.seq
	}
	eng.recorder = history.NewRecorder(s, logger)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Default stack: recover → tracing → metrics → logging → role check → timeout.
	config := rt.Config()
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.RequireStaff(),
		mw.Timeout(config.OperationTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)
	eng.chain = mw.Chain(allMws...)

	// Maintenance jobs.
	eng.scheduler = cron.NewScheduler(rt.Clock(), logger)
	if config.ExpirySchedule != "" {
		if err := eng.scheduler.Register(cron.TaskExpireOverdue, config.ExpirySchedule, func(ctx context.Context) error {
			_, err := eng.ExpireOverdue(ctx)
			return err
		}); err != nil {
			return nil, err
		}
	}
	if config.RetrainSchedule != "" {
		if err := eng.scheduler.Register(cron.TaskRetrain, config.RetrainSchedule, func(ctx context.Context) error {
			_, err := eng.Retrain(ctx)
			return err
		}); err != nil {
			return nil, err
		}
	}

	// Wire back into the Runtime.
	rt.SetScheduler(eng.scheduler)
	rt.SetExtensions(eng.extensions)

	return eng, nil
}

// Start begins background maintenance (expiry sweep and retraining).
// Call Restore first so the lines reflect the store.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.rt.Start(ctx)
}

// Stop stops maintenance, notifies extensions and closes the store.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.rt.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Runtime returns the underlying Runtime.
func (eng *Engine) Runtime() *smartqueue.Runtime { return eng.rt }

// Store returns the composite store.
func (eng *Engine) Store() store.Store { return eng.store }

// Estimator returns the wait estimator.
func (eng *Engine) Estimator() *estimator.Estimator { return eng.estimator }

// Lines returns the queue line manager.
func (eng *Engine) Lines() *queue.Manager { return eng.lines }

// Scheduler returns the maintenance scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// Policy returns the priority derivation policy.
func (eng *Engine) Policy() token.Policy { return eng.policy }

// run executes fn through the middleware chain.
func (eng *Engine) run(ctx context.Context, op *mw.Op, fn mw.Handler) error {
	return eng.chain(ctx, op, fn)
}

// line makes sure the queue's line is open and loaded and returns the
// queue. A line is filled from the store once, under its own lock, so it
// never starts out empty while active tokens exist.
func (eng *Engine) line(ctx context.Context, queueID id.QueueID) (*queue.Queue, error) {
	q, err := eng.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if eng.lines.Loaded(queueID) {
		return q, nil
	}
	if _, err := eng.restoreQueue(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// syncPositions persists the positions that changed between two line
// snapshots. skip is the token the caller persists itself. It runs after
// the caller's own write has committed, so a failure does not undo the
// operation: the line is marked stale and the next sync on it rewrites
// every position.
func (eng *Engine) syncPositions(ctx context.Context, l *queue.Line, before, after map[string]int, skip id.TokenID) {
	if l.PositionsStale() {
		before = nil
	}
	var errs []error
	for key, pos := range after {
		if key == skip.String() {
			continue
		}
		if old, ok := before[key]; ok && old == pos {
			continue
		}
		if err := eng.writePosition(ctx, key, pos); err != nil {
			errs = append(errs, fmt.Errorf("sync position of %s: %w", key, err))
		}
	}
	l.SetPositionsStale(len(errs) > 0)
	if len(errs) > 0 {
		eng.logger.Warn("position sync failed, will retry",
			slog.String("queue_id", l.QueueID().String()),
			slog.String("error", errors.Join(errs...).Error()),
		)
	}
}

func (eng *Engine) writePosition(ctx context.Context, key string, pos int) error {
	tokenID, err := id.ParseTokenID(key)
	if err != nil {
		return err
	}
	t, err := eng.store.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if !t.Queued() || (t.Position != nil && *t.Position == pos) {
		return nil
	}
	t.SetPosition(pos)
	return eng.store.UpdateToken(ctx, t)
}

// emit notifies extensions of a transition. Delivery is best effort.
func (eng *Engine) emit(ctx context.Context, t *token.Token, action token.Action, from token.State, positions map[string]int) {
	eng.extensions.EmitStatusChanged(ctx, event.NewStatusChange(t, action, from, positions, t.UpdatedAt))
}

// activeServers counts the available staff able to serve q.
func (eng *Engine) activeServers(ctx context.Context, q *queue.Queue) (int, error) {
	members, err := eng.store.ListStaff(ctx, staffFilter(q))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range members {
		if s.Serves(q.Domain, q.Department, q.ServerID) {
			n++
		}
	}
	return n, nil
}
