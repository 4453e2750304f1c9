package history_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/store/memory"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func completedToken(t *testing.T, start time.Time, serviceFor time.Duration) *token.Token {
	t.Helper()
	tok := token.New(id.NewQueueID(), id.NewUserID(), smartqueue.DomainHealthcare, start)
	tok.QueueLengthAtAdmission = 4
	tok.ActiveServersAtAdmission = 2
	steps := []func() error{
		func() error { return tok.Admit(start, token.Estimate{Minutes: 20}) },
		func() error { return tok.Call(start.Add(6*time.Minute), id.NewStaffID()) },
		func() error { return tok.StartService(start.Add(8 * time.Minute)) },
		func() error { return tok.Complete(start.Add(8*time.Minute + serviceFor)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatal(err)
		}
	}
	return tok
}

func TestRecordCompletedToken(t *testing.T) {
	ctx := t.Context()
	s := memory.New()
	rec := history.NewRecorder(s, testLogger())

	// Monday 10:00.
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	tok := completedToken(t, start, 12*time.Minute)
	q := &queue.Queue{ID: tok.QueueID, Department: "cardiology", CounterNumber: "3"}

	r, err := rec.Record(ctx, tok, q, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if r.ServiceTime != 12 {
		t.Errorf("ServiceTime = %d, want 12", r.ServiceTime)
	}
	if r.WaitTime != 8 {
		t.Errorf("WaitTime = %d, want 8", r.WaitTime)
	}
	if r.HourOfDay != 10 || r.DayOfWeek != 0 {
		t.Errorf("hour/day = %d/%d, want 10/0", r.HourOfDay, r.DayOfWeek)
	}
	if r.Department != "cardiology" || r.QueueLength != 4 || r.ActiveServers != 2 {
		t.Errorf("unexpected context: %+v", r)
	}

	n, err := s.CountRecords(ctx, history.ListOpts{})
	if err != nil || n != 1 {
		t.Fatalf("CountRecords = %d, %v; want 1", n, err)
	}

	obs, err := rec.Observations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 1 || obs[0].WaitMinutes != 8 || obs[0].QueueLength != 4 {
		t.Errorf("unexpected observations: %+v", obs)
	}
}

func TestRecordRejectsUnfinishedToken(t *testing.T) {
	rec := history.NewRecorder(memory.New(), testLogger())
	tok := token.New(id.NewQueueID(), id.NewUserID(), smartqueue.DomainBanking, time.Now())
	if _, err := rec.Record(t.Context(), tok, nil, time.Now()); err == nil {
		t.Fatal("expected error for token that is not completed")
	}
}
