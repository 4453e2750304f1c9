package mongo

import (
	"testing"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

func TestRecordModelRoundTrip(t *testing.T) {
	r := &history.Record{
		ID:          id.NewHistoryID(),
		TokenID:     id.NewTokenID(),
		QueueID:     id.NewQueueID(),
		Domain:      smartqueue.DomainHealthcare,
		Department:  "Cardiology",
		Priority:    token.PriorityHigh,
		ServiceTime: 12,
		WaitTime:    30,
		HourOfDay:   10,
		DayOfWeek:   2,
		CreatedAt:   time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
	}

	m := toRecordModel(r)
	if m.ServerID != "" {
		t.Errorf("nil server stored as %q", m.ServerID)
	}
	got, err := fromRecordModel(m)
	if err != nil {
		t.Fatalf("fromRecordModel: %v", err)
	}
	if got.ID.String() != r.ID.String() || got.QueueID.String() != r.QueueID.String() {
		t.Error("ids not preserved")
	}
	if !got.ServerID.IsNil() {
		t.Error("server id should stay nil")
	}
	if got.WaitTime != 30 || got.Priority != token.PriorityHigh || got.Department != "Cardiology" {
		t.Errorf("fields not preserved: %+v", got)
	}
}

func TestChangeModelRejectsBadID(t *testing.T) {
	m := toChangeModel(&event.StatusChange{
		ID:      id.NewEventID(),
		TokenID: id.NewTokenID(),
		QueueID: id.NewQueueID(),
		Action:  token.ActionCall,
		At:      time.Now().UTC(),
	})
	m.TokenID = "not-a-typeid"

	if _, err := fromChangeModel(m); err == nil {
		t.Fatal("expected parse error for malformed token id")
	}
}

func TestHistoryFilter(t *testing.T) {
	q := id.NewQueueID()
	f := historyFilter(history.ListOpts{QueueID: q, Domain: smartqueue.DomainBanking})
	if f["queue_id"] != q.String() || f["domain"] != "banking" {
		t.Errorf("filter = %v", f)
	}
	if _, ok := f["created_at"]; ok {
		t.Error("zero Since should not filter created_at")
	}
}
