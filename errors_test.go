package smartqueue_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
)

func TestTransitionErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("engine: cancel: %w", &smartqueue.TransitionError{
		TokenID: "tok_x",
		From:    "completed",
		Action:  "cancel",
	})
	if !errors.Is(err, smartqueue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	var te *smartqueue.TransitionError
	if !errors.As(err, &te) {
		t.Fatal("expected TransitionError in chain")
	}
	if te.From != "completed" || te.Action != "cancel" {
		t.Errorf("unexpected fields: %+v", te)
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	c := smartqueue.NewManualClock(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}
	got := c.Advance(12 * time.Minute)
	if want := start.Add(12 * time.Minute); !got.Equal(want) || !c.Now().Equal(want) {
		t.Errorf("Advance: got %v, want %v", got, want)
	}
}

func TestNewDefaults(t *testing.T) {
	rt, err := smartqueue.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.Config().DefaultCapacity != 50 {
		t.Errorf("DefaultCapacity = %d, want 50", rt.Config().DefaultCapacity)
	}
	if _, err := smartqueue.New(smartqueue.WithDefaultCapacity(0)); err == nil {
		t.Error("expected error for zero capacity")
	}
	if err := rt.Start(t.Context()); !errors.Is(err, smartqueue.ErrNoStore) {
		t.Errorf("Start without store: got %v, want ErrNoStore", err)
	}
}
