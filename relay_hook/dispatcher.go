package relayhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/backoff"
)

// ErrEntryNotFound is returned when replaying an unknown outbox entry.
var ErrEntryNotFound = errors.New("relayhook: outbox entry not found")

// Dispatcher drains the outbox into a Publisher. Delivery is strictly
// in sequence order: a failing entry blocks later ones until it is sent
// or parked as failed after maxAttempts.
type Dispatcher struct {
	outbox      *Outbox
	publisher   Publisher
	strategy    backoff.Strategy
	maxAttempts int
	interval    time.Duration
	batchSize   int
	logger      *slog.Logger
	now         func() time.Time

	// flushMu serializes passes over the outbox.
	flushMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func newDispatcher(o *Outbox, p Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		outbox:      o,
		publisher:   p,
		strategy:    backoff.DefaultStrategy(),
		maxAttempts: 8,
		interval:    250 * time.Millisecond,
		batchSize:   128,
		logger:      logger,
		now:         time.Now,
	}
}

// Start requeues entries left in flight by a previous process and starts
// the delivery loop. It returns immediately.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	if n, err := d.requeue(StateSent); err != nil {
		return err
	} else if n > 0 {
		d.logger.Info("relay requeued in-flight entries", slog.Int("count", n))
	}

	d.running = true
	d.stopCh = make(chan struct{})
	d.wg.Add(1)
	go d.loop(ctx)
	return nil
}

// Stop halts the delivery loop and waits for the current pass.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			if _, _, err := d.Flush(ctx); err != nil {
				d.logger.Error("relay flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Flush makes one delivery pass. It returns how many entries were
// delivered and how many were parked as failed.
func (d *Dispatcher) Flush(ctx context.Context) (sent, failed int, err error) {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	var batch []*Entry
	err = d.outbox.Scan(StateNew, func(e *Entry) (bool, error) {
		batch = append(batch, e)
		return len(batch) < d.batchSize, nil
	})
	if err != nil {
		return 0, 0, err
	}

	for _, e := range batch {
		if ctx.Err() != nil {
			return sent, failed, nil
		}
		now := d.now()
		if e.Attempts > 0 && now.Before(time.Unix(0, e.LastAttempt).Add(d.strategy.Delay(int(e.Attempts)))) {
			// Head of line is backing off.
			return sent, failed, nil
		}

		e.State = StateSent
		if err := d.outbox.Update(e); err != nil {
			return sent, failed, err
		}

		pubErr := d.publisher.Publish(ctx, e.Key, e.Payload)
		if pubErr == nil {
			if err := d.outbox.Delete(e.Seq); err != nil {
				return sent, failed, err
			}
			sent++
			continue
		}

		e.markAttempt(now, pubErr)
		if int(e.Attempts) >= d.maxAttempts {
			e.State = StateFailed
			failed++
			d.logger.Error("relay entry parked as failed",
				slog.Uint64("seq", e.Seq),
				slog.Int("attempts", int(e.Attempts)),
				slog.String("error", pubErr.Error()),
			)
			if err := d.outbox.Update(e); err != nil {
				return sent, failed, err
			}
			continue
		}

		e.State = StateNew
		d.logger.Warn("relay publish failed",
			slog.Uint64("seq", e.Seq),
			slog.Int("attempt", int(e.Attempts)),
			slog.String("error", pubErr.Error()),
		)
		if err := d.outbox.Update(e); err != nil {
			return sent, failed, err
		}
		return sent, failed, nil
	}
	return sent, failed, nil
}

// ReplayFailed moves every failed entry back to the delivery queue with a
// fresh attempt budget.
func (d *Dispatcher) ReplayFailed() (int, error) {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()
	return d.requeue(StateFailed)
}

// Replay moves one failed entry back to the delivery queue.
func (d *Dispatcher) Replay(seq uint64) error {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	e, err := d.outbox.Get(seq)
	if err != nil {
		if isNotFound(err) {
			return ErrEntryNotFound
		}
		return err
	}
	e.State = StateNew
	e.Attempts = 0
	return d.outbox.Update(e)
}

func (d *Dispatcher) requeue(from State) (int, error) {
	var entries []*Entry
	err := d.outbox.Scan(from, func(e *Entry) (bool, error) {
		entries = append(entries, e)
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		e.State = StateNew
		if from == StateFailed {
			e.Attempts = 0
		}
		if err := d.outbox.Update(e); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}
