package token_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func admitted(t *testing.T) *token.Token {
	t.Helper()
	tok := token.New(id.NewQueueID(), id.NewUserID(), smartqueue.DomainHealthcare, t0)
	if err := tok.Admit(t0, token.Estimate{Minutes: 10}); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	return tok
}

func TestHappyPath(t *testing.T) {
	tok := admitted(t)
	server := id.NewStaffID()

	if err := tok.Call(t0.Add(3*time.Minute), server); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if tok.State != token.StateActive || !tok.Called {
		t.Fatalf("after Call: state=%s called=%v", tok.State, tok.Called)
	}
	if tok.Position == nil || *tok.Position != 0 {
		t.Errorf("called token position = %v, want 0", tok.Position)
	}
	if tok.ServerID.String() != server.String() {
		t.Errorf("ServerID = %s, want %s", tok.ServerID, server)
	}

	if err := tok.StartService(t0.Add(5 * time.Minute)); err != nil {
		t.Fatalf("StartService: %v", err)
	}
	if tok.ActualWait == nil || *tok.ActualWait != 5 {
		t.Errorf("ActualWait = %v, want 5", tok.ActualWait)
	}
	if tok.Position != nil {
		t.Errorf("in-service token position = %d, want nil", *tok.Position)
	}

	if err := tok.Complete(t0.Add(17 * time.Minute)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if tok.ActualService == nil || *tok.ActualService != 12 {
		t.Errorf("ActualService = %v, want 12", tok.ActualService)
	}
	if tok.State != token.StateCompleted {
		t.Errorf("state = %s, want completed", tok.State)
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testing.T) *token.Token
		act   func(*token.Token) error
	}{
		{
			name:  "cancel completed",
			setup: completed,
			act:   func(tok *token.Token) error { return tok.Cancel(t0.Add(time.Hour)) },
		},
		{
			name:  "start uncalled",
			setup: admitted,
			act:   func(tok *token.Token) error { return tok.StartService(t0) },
		},
		{
			name:  "call twice",
			setup: called,
			act:   func(tok *token.Token) error { return tok.Call(t0, id.NewStaffID()) },
		},
		{
			name:  "expire uncalled",
			setup: admitted,
			act:   func(tok *token.Token) error { return tok.Expire(t0) },
		},
		{
			name:  "complete active",
			setup: called,
			act:   func(tok *token.Token) error { return tok.Complete(t0) },
		},
		{
			name:  "admit twice",
			setup: admitted,
			act:   func(tok *token.Token) error { return tok.Admit(t0, token.Estimate{}) },
		},
		{
			name: "cancel expired",
			setup: func(t *testing.T) *token.Token {
				tok := called(t)
				if err := tok.Expire(t0.Add(10 * time.Minute)); err != nil {
					t.Fatalf("Expire: %v", err)
				}
				return tok
			},
			act: func(tok *token.Token) error { return tok.Cancel(t0.Add(time.Hour)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := tt.setup(t)
			before := tok.State
			err := tt.act(tok)
			if !errors.Is(err, smartqueue.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			var te *smartqueue.TransitionError
			if !errors.As(err, &te) || te.Action == "" || te.From == "" {
				t.Errorf("transition error lacks detail: %v", err)
			}
			if tok.State != before {
				t.Errorf("state changed on failed transition: %s -> %s", before, tok.State)
			}
		})
	}
}

func TestCancelInService(t *testing.T) {
	tok := called(t)
	if err := tok.StartService(t0.Add(4 * time.Minute)); err != nil {
		t.Fatalf("StartService: %v", err)
	}
	if err := tok.Cancel(t0.Add(6 * time.Minute)); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if tok.State != token.StateCancelled || tok.ActualService != nil {
		t.Errorf("state=%s actualService=%v", tok.State, tok.ActualService)
	}
}

func TestStampsNeverGoBackwards(t *testing.T) {
	tok := called(t)
	// Clock skew: start reported before the call.
	if err := tok.StartService(t0.Add(-time.Minute)); err != nil {
		t.Fatalf("StartService: %v", err)
	}
	if tok.ServiceStartedAt.Before(*tok.CalledAt) {
		t.Errorf("service_started_at %v before called_at %v", tok.ServiceStartedAt, tok.CalledAt)
	}
	if *tok.ActualWait < 0 {
		t.Errorf("negative wait %d", *tok.ActualWait)
	}
}

func TestOverdue(t *testing.T) {
	tok := called(t)
	grace := 5 * time.Minute
	if tok.Overdue(t0.Add(grace), grace) {
		t.Error("token overdue exactly at grace boundary")
	}
	if !tok.Overdue(t0.Add(grace+time.Second), grace) {
		t.Error("token not overdue after grace")
	}
	if admitted(t).Overdue(t0.Add(time.Hour), grace) {
		t.Error("uncalled token reported overdue")
	}
}

func TestDisplayPriority(t *testing.T) {
	tests := []struct {
		p    token.Priority
		want string
	}{
		{token.PriorityEmergency, "emergency"},
		{token.PriorityHigh, "senior"},
		{token.PriorityMedium, "senior"},
		{token.PriorityNormal, "normal"},
	}
	for _, tt := range tests {
		tok := &token.Token{Priority: tt.p}
		if got := tok.DisplayPriority(); got != tt.want {
			t.Errorf("%s: DisplayPriority() = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	if got := token.FormatNumber(smartqueue.DomainBanking, 42); got != "B-0042" {
		t.Errorf("FormatNumber = %q, want B-0042", got)
	}
}

func called(t *testing.T) *token.Token {
	t.Helper()
	tok := admitted(t)
	if err := tok.Call(t0, id.NewStaffID()); err != nil {
		t.Fatalf("Call: %v", err)
	}
	return tok
}

func completed(t *testing.T) *token.Token {
	t.Helper()
	tok := called(t)
	if err := tok.StartService(t0.Add(time.Minute)); err != nil {
		t.Fatalf("StartService: %v", err)
	}
	if err := tok.Complete(t0.Add(13 * time.Minute)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return tok
}
