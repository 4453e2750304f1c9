package audithook_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	ah "github.com/Jiyabhaviksadaria/smartqueue/audit_hook"
	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/ext"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

// ── Test helpers ─────────────────────────────────────

func newTestToken() *token.Token {
	wait := 14
	return &token.Token{
		ID:            id.NewTokenID(),
		Number:        "H-0007",
		QueueID:       id.NewQueueID(),
		Domain:        smartqueue.DomainHealthcare,
		Priority:      token.PriorityHigh,
		State:         token.StateInService,
		EstimatedWait: 15,
		ModelVersion:  "lr-3",
		ActualWait:    &wait,
	}
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	e := ah.New(&mockRecorder{})
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

func TestExtension_TokenAdmitted(t *testing.T) {
	rec := &mockRecorder{}
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	e := ah.New(rec, ah.WithClock(func() time.Time { return at }))
	tok := newTestToken()

	if err := e.OnTokenAdmitted(context.Background(), tok); err != nil {
		t.Fatalf("OnTokenAdmitted: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionTokenAdmitted {
		t.Errorf("Action: want %q, got %q", ah.ActionTokenAdmitted, evt.Action)
	}
	if evt.Resource != ah.ResourceToken {
		t.Errorf("Resource: want %q, got %q", ah.ResourceToken, evt.Resource)
	}
	if evt.Category != ah.CategoryToken {
		t.Errorf("Category: want %q, got %q", ah.CategoryToken, evt.Category)
	}
	if evt.ResourceID != tok.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", tok.ID.String(), evt.ResourceID)
	}
	if evt.Severity != ah.SeverityInfo || evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("Severity/Outcome = %q/%q", evt.Severity, evt.Outcome)
	}
	if evt.Metadata["token_number"] != "H-0007" {
		t.Errorf("Metadata[token_number]: got %v", evt.Metadata["token_number"])
	}
	if evt.Metadata["estimated_wait"] != 15 {
		t.Errorf("Metadata[estimated_wait]: got %v", evt.Metadata["estimated_wait"])
	}
	if !evt.At.Equal(at) {
		t.Errorf("At = %v, want %v", evt.At, at)
	}
	if evt.ID.IsNil() {
		t.Error("expected audit ID")
	}
}

func TestExtension_StampsActor(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	user := id.NewUserID()
	ctx := smartqueue.WithActor(context.Background(), smartqueue.Actor{
		UserID: user,
		Role:   smartqueue.RoleDoctor,
		IP:     "10.0.0.7",
	})

	if err := e.OnTokenCalled(ctx, newTestToken(), id.NewStaffID()); err != nil {
		t.Fatalf("OnTokenCalled: %v", err)
	}

	evt := rec.last()
	if evt.ActorID != user.String() || evt.ActorRole != "doctor" || evt.IP != "10.0.0.7" {
		t.Errorf("actor = %q/%q/%q", evt.ActorID, evt.ActorRole, evt.IP)
	}
}

func TestExtension_ServiceSteps(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	ctx := context.Background()
	tok := newTestToken()
	service := 9
	tok.ActualService = &service
	hr := &history.Record{ID: id.NewHistoryID()}

	_ = e.OnServiceStarted(ctx, tok)
	if got := rec.last().Metadata["actual_wait"]; got != 14 {
		t.Errorf("actual_wait = %v, want 14", got)
	}

	_ = e.OnServiceCompleted(ctx, tok, hr)
	evt := rec.last()
	if evt.Action != ah.ActionServiceCompleted {
		t.Errorf("Action = %q", evt.Action)
	}
	if evt.Metadata["actual_service"] != 9 || evt.Metadata["history_id"] != hr.ID.String() {
		t.Errorf("Metadata = %v", evt.Metadata)
	}
}

func TestExtension_CancelAndExpireAreWarnings(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	ctx := context.Background()

	_ = e.OnTokenCancelled(ctx, newTestToken(), token.StateActive)
	cancelled := rec.last()
	if cancelled.Severity != ah.SeverityWarning || cancelled.Metadata["from"] != "active" {
		t.Errorf("cancelled = %+v", cancelled)
	}

	_ = e.OnTokenExpired(ctx, newTestToken())
	expired := rec.last()
	if expired.Severity != ah.SeverityWarning || expired.Outcome != ah.OutcomeFailure {
		t.Errorf("expired = %+v", expired)
	}
}

func TestExtension_ModelTrained(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	ctx := context.Background()

	_ = e.OnModelTrained(ctx, estimator.TrainResult{Trained: true, Version: "lr-2", Samples: 40, RSquared: 0.8})
	if evt := rec.last(); evt.Action != ah.ActionModelTrained || evt.ResourceID != "lr-2" {
		t.Errorf("trained = %+v", evt)
	}

	_ = e.OnModelTrained(ctx, estimator.TrainResult{Samples: 3, SkipReason: "need 20 qualifying records, have 3"})
	if evt := rec.last(); evt.Action != ah.ActionModelTrainSkipped || evt.Severity != ah.SeverityWarning {
		t.Errorf("skipped = %+v", evt)
	}
}

func TestExtension_WithActions_FiltersDisabled(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionTokenCancelled, ah.ActionTokenExpired))
	ctx := context.Background()
	tok := newTestToken()

	if err := e.OnTokenAdmitted(ctx, tok); err != nil {
		t.Fatalf("OnTokenAdmitted: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 events (admitted disabled), got %d", rec.count())
	}

	_ = e.OnTokenCancelled(ctx, tok, token.StateActive)
	_ = e.OnTokenExpired(ctx, tok)
	if rec.count() != 2 {
		t.Errorf("expected 2 events, got %d", rec.count())
	}
}

func TestExtension_RecorderError_DoesNotPropagate(t *testing.T) {
	failing := ah.RecorderFunc(func(_ context.Context, _ *ah.AuditEvent) error {
		return errors.New("audit backend down")
	})

	e := ah.New(failing)
	if err := e.OnTokenAdmitted(context.Background(), newTestToken()); err != nil {
		t.Fatalf("expected no error (audit failure swallowed), got: %v", err)
	}
}

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	reg := ext.NewRegistry(slog.Default())
	reg.Register(ah.New(rec))

	ctx := context.Background()
	tok := newTestToken()

	reg.EmitTokenAdmitted(ctx, tok)
	reg.EmitTokenCalled(ctx, tok, id.NewStaffID())
	reg.EmitServiceStarted(ctx, tok)
	reg.EmitServiceCompleted(ctx, tok, nil)
	reg.EmitTokenCancelled(ctx, tok, token.StateActive)
	reg.EmitTokenExpired(ctx, tok)
	reg.EmitQueueChanged(ctx, &queue.Queue{ID: id.NewQueueID(), Name: "Counter 1"})
	reg.EmitModelTrained(ctx, estimator.TrainResult{Trained: true, Version: "lr-1"})
	reg.EmitModelTrained(ctx, estimator.TrainResult{})

	allActions := ah.AllActions()
	if rec.count() != len(allActions) {
		t.Fatalf("expected %d events, got %d", len(allActions), rec.count())
	}
	for _, action := range allActions {
		if rec.findByAction(action) == nil {
			t.Errorf("missing event for action %q", action)
		}
	}
}
