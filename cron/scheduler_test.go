package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/cron"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var start = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func TestScheduler_RunsDueTasks(t *testing.T) {
	clock := smartqueue.NewManualClock(start)
	s := cron.NewScheduler(clock, testLogger())

	var expiries, retrains int
	if err := s.Register(cron.TaskExpireOverdue, "@every 30s", func(context.Context) error {
		expiries++
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(cron.TaskRetrain, "@every 15m", func(context.Context) error {
		retrains++
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if ran := s.Tick(ctx); len(ran) != 0 {
		t.Fatalf("ran %v before anything was due", ran)
	}

	clock.Advance(30 * time.Second)
	if ran := s.Tick(ctx); len(ran) != 1 || ran[0] != cron.TaskExpireOverdue {
		t.Fatalf("ran = %v", ran)
	}

	clock.Advance(15 * time.Minute)
	ran := s.Tick(ctx)
	if len(ran) != 2 {
		t.Fatalf("ran = %v, want both tasks", ran)
	}
	if expiries != 2 || retrains != 1 {
		t.Errorf("expiries=%d retrains=%d", expiries, retrains)
	}
}

func TestScheduler_RecordsFailures(t *testing.T) {
	clock := smartqueue.NewManualClock(start)
	s := cron.NewScheduler(clock, testLogger())
	_ = s.Register("flaky", "@every 1m", func(context.Context) error {
		return errors.New("store unavailable")
	})
	_ = s.Register("panicky", "@every 1m", func(context.Context) error {
		panic("boom")
	})

	clock.Advance(time.Minute)
	s.Tick(context.Background())

	for _, e := range s.Entries() {
		if e.Runs != 1 || e.LastError == "" {
			t.Errorf("%s: runs=%d err=%q", e.Name, e.Runs, e.LastError)
		}
		if want := start.Add(2 * time.Minute); !e.NextRunAt.Equal(want) {
			t.Errorf("%s: next = %v, want %v", e.Name, e.NextRunAt, want)
		}
	}
}

func TestScheduler_RejectsBadRegistrations(t *testing.T) {
	s := cron.NewScheduler(nil, testLogger())
	noop := func(context.Context) error { return nil }

	if err := s.Register("bad", "not a schedule", noop); err == nil {
		t.Error("expected parse error")
	}
	if err := s.Register("dup", "@every 1s", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("dup", "@every 1s", noop); err == nil {
		t.Error("expected duplicate error")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := cron.NewScheduler(smartqueue.SystemClock{}, testLogger(), cron.WithTickInterval(10*time.Millisecond))
	var runs atomic.Int32
	_ = s.Register("fast", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("task never ran")
		case <-time.After(20 * time.Millisecond):
		}
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Second stop is a no-op.
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
