package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/Jiyabhaviksadaria/smartqueue"
)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithTaskTimeout bounds each task run. Zero means no bound.
func WithTaskTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.taskTimeout = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler runs named maintenance tasks on a tick loop. Tasks run one at
// a time in name order, so an expiry sweep never overlaps a retrain.
type Scheduler struct {
	clock  smartqueue.Clock
	logger *slog.Logger

	tickInterval time.Duration
	taskTimeout  time.Duration

	mu        sync.Mutex
	entries   map[string]*Entry
	schedules map[string]cronlib.Schedule

	// tickMu serializes ticks.
	tickMu sync.Mutex

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(clock smartqueue.Clock, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = smartqueue.SystemClock{}
	}
	s := &Scheduler{
		clock:        clock,
		logger:       logger,
		tickInterval: time.Second,
		entries:      make(map[string]*Entry),
		schedules:    make(map[string]cronlib.Schedule),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a named task. The first run is the schedule's next
// activation after now.
func (s *Scheduler) Register(name, expr string, task Task) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("cron: parse %q for %s: %w", expr, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("cron: task %q already registered", name)
	}
	s.entries[name] = &Entry{
		Name:      name,
		Schedule:  expr,
		NextRunAt: sched.Next(s.clock.Now()),
		task:      task,
	}
	s.schedules[name] = sched
	return nil
}

// Entries returns a snapshot of all entries ordered by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		cp.task = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.tickLoop(ctx)
	s.logger.Info("cron scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
		slog.Int("tasks", len(s.Entries())),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for a running task.
func (s *Scheduler) Stop(_ context.Context) error {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.runMu.Unlock()

	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every due task once and returns the names that ran.
func (s *Scheduler) Tick(ctx context.Context) []string {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.clock.Now()
	var due []*Entry
	s.mu.Lock()
	for _, e := range s.entries {
		if !e.NextRunAt.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].Name < due[j].Name })

	ran := make([]string, 0, len(due))
	for _, e := range due {
		s.fire(ctx, e, now)
		ran = append(ran, e.Name)
	}
	return ran
}

func (s *Scheduler) fire(ctx context.Context, e *Entry, now time.Time) {
	runCtx := ctx
	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.run(runCtx, e)
	elapsed := time.Since(start)

	s.mu.Lock()
	e.Runs++
	e.LastRunAt = &now
	e.NextRunAt = s.schedules[e.Name].Next(now)
	e.LastError = ""
	if err != nil {
		e.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("cron task failed",
			slog.String("task", e.Name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("cron task ran",
		slog.String("task", e.Name),
		slog.Duration("elapsed", elapsed),
	)
}

func (s *Scheduler) run(ctx context.Context, e *Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cron: task %s panicked: %v", e.Name, r)
		}
	}()
	return e.task(ctx)
}
