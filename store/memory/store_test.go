package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	audithook "github.com/Jiyabhaviksadaria/smartqueue/audit_hook"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/staff"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, smartqueue.ErrStoreClosed) {
		t.Fatalf("Ping after Close = %v, want ErrStoreClosed", err)
	}
}

// ──────────────────────────────────────────────────
// Token Store tests
// ──────────────────────────────────────────────────

func newToken(q id.QueueID, u id.UserID, seq uint64, at time.Time, number string) *token.Token {
	t := token.New(q, u, smartqueue.DomainHealthcare, at)
	t.Seq = seq
	t.Number = number
	t.State = token.StateActive
	return t
}

func TestCreateAndGetToken(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tok := newToken(id.NewQueueID(), id.NewUserID(), 1, base, "H-0001")
	if err := s.CreateToken(ctx, tok); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if err := s.CreateToken(ctx, tok); !errors.Is(err, smartqueue.ErrTokenAlreadyExists) {
		t.Fatalf("duplicate CreateToken = %v, want ErrTokenAlreadyExists", err)
	}

	got, err := s.GetToken(ctx, tok.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if got.Number != "H-0001" {
		t.Errorf("Number = %q, want H-0001", got.Number)
	}

	byNum, err := s.GetTokenByNumber(ctx, "H-0001")
	if err != nil {
		t.Fatalf("GetTokenByNumber: %v", err)
	}
	if byNum.ID.String() != tok.ID.String() {
		t.Errorf("GetTokenByNumber returned %s, want %s", byNum.ID, tok.ID)
	}

	if _, err := s.GetToken(ctx, id.NewTokenID()); !errors.Is(err, smartqueue.ErrTokenNotFound) {
		t.Errorf("GetToken unknown = %v, want ErrTokenNotFound", err)
	}
	if _, err := s.GetTokenByNumber(ctx, "H-9999"); !errors.Is(err, smartqueue.ErrTokenNotFound) {
		t.Errorf("GetTokenByNumber unknown = %v, want ErrTokenNotFound", err)
	}
}

func TestDuplicateNumberRejected(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	q := id.NewQueueID()

	if err := s.CreateToken(ctx, newToken(q, id.NewUserID(), 1, base, "H-0001")); err != nil {
		t.Fatal(err)
	}
	err := s.CreateToken(ctx, newToken(q, id.NewUserID(), 2, base, "H-0001"))
	if !errors.Is(err, smartqueue.ErrTokenAlreadyExists) {
		t.Fatalf("err = %v, want ErrTokenAlreadyExists", err)
	}
}

func TestTokenCopiesAreIsolated(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tok := newToken(id.NewQueueID(), id.NewUserID(), 1, base, "H-0001")
	pos := 3
	tok.Position = &pos
	if err := s.CreateToken(ctx, tok); err != nil {
		t.Fatal(err)
	}
	*tok.Position = 9

	got, _ := s.GetToken(ctx, tok.ID)
	if *got.Position != 3 {
		t.Errorf("stored position = %d, want 3", *got.Position)
	}
	*got.Position = 7
	again, _ := s.GetToken(ctx, tok.ID)
	if *again.Position != 3 {
		t.Errorf("position after mutating read copy = %d, want 3", *again.Position)
	}
}

func TestUpdateToken(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tok := newToken(id.NewQueueID(), id.NewUserID(), 1, base, "H-0001")
	if err := s.UpdateToken(ctx, tok); !errors.Is(err, smartqueue.ErrTokenNotFound) {
		t.Fatalf("UpdateToken missing = %v, want ErrTokenNotFound", err)
	}
	_ = s.CreateToken(ctx, tok)

	tok.State = token.StateInService
	if err := s.UpdateToken(ctx, tok); err != nil {
		t.Fatalf("UpdateToken: %v", err)
	}
	got, _ := s.GetToken(ctx, tok.ID)
	if got.State != token.StateInService {
		t.Errorf("State = %s, want %s", got.State, token.StateInService)
	}
}

func TestMaxSeq(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	n, err := s.MaxSeq(ctx)
	if err != nil || n != 0 {
		t.Fatalf("MaxSeq on empty store = %d, %v", n, err)
	}

	// The newest token does not carry the highest seq.
	q := id.NewQueueID()
	for _, tok := range []*token.Token{
		newToken(q, id.NewUserID(), 9, base, "H-0009"),
		newToken(q, id.NewUserID(), 4, base.Add(time.Minute), "H-0004"),
	} {
		if err := s.CreateToken(ctx, tok); err != nil {
			t.Fatal(err)
		}
	}
	n, err = s.MaxSeq(ctx)
	if err != nil || n != 9 {
		t.Fatalf("MaxSeq = %d, %v; want 9", n, err)
	}
}

func TestListActiveTokensOrder(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	q := id.NewQueueID()
	other := id.NewQueueID()

	// Same created_at: seq breaks the tie.
	a := newToken(q, id.NewUserID(), 3, base.Add(time.Minute), "H-0003")
	b := newToken(q, id.NewUserID(), 2, base.Add(time.Minute), "H-0002")
	c := newToken(q, id.NewUserID(), 1, base, "H-0001")
	done := newToken(q, id.NewUserID(), 4, base, "H-0004")
	done.State = token.StateCompleted
	elsewhere := newToken(other, id.NewUserID(), 5, base, "H-0005")

	for _, tok := range []*token.Token{a, b, c, done, elsewhere} {
		if err := s.CreateToken(ctx, tok); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListActiveTokens(ctx, q)
	if err != nil {
		t.Fatalf("ListActiveTokens: %v", err)
	}
	want := []string{"H-0001", "H-0002", "H-0003"}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Number != w {
			t.Errorf("[%d] = %s, want %s", i, got[i].Number, w)
		}
	}
}

func TestListTokens(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	q := id.NewQueueID()
	user := id.NewUserID()

	for i := range 5 {
		tok := newToken(q, user, uint64(i+1), base.Add(time.Duration(i)*time.Minute), "")
		if i == 4 {
			tok.State = token.StateCancelled
		}
		_ = s.CreateToken(ctx, tok)
	}
	_ = s.CreateToken(ctx, newToken(id.NewQueueID(), id.NewUserID(), 9, base, ""))

	tests := []struct {
		name    string
		opts    token.ListOpts
		want    int
		wantSeq uint64
	}{
		{"queue", token.ListOpts{QueueID: q}, 5, 5},
		{"state", token.ListOpts{QueueID: q, State: token.StateActive}, 4, 4},
		{"limit", token.ListOpts{QueueID: q, Limit: 2}, 2, 5},
		{"offset", token.ListOpts{QueueID: q, Offset: 3}, 2, 2},
		{"offset past end", token.ListOpts{QueueID: q, Offset: 10}, 0, 0},
		{"all", token.ListOpts{}, 6, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListTokens(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d tokens, want %d", len(got), tt.want)
			}
			if tt.want > 0 && got[0].Seq != tt.wantSeq {
				t.Errorf("first seq = %d, want %d", got[0].Seq, tt.wantSeq)
			}
		})
	}

	mine, _ := s.ListUserTokens(ctx, user)
	if len(mine) != 5 || mine[0].Seq != 5 {
		t.Errorf("ListUserTokens = %d tokens (first seq %d), want 5 newest first", len(mine), mine[0].Seq)
	}
}

// ──────────────────────────────────────────────────
// Queue and Staff Store tests
// ──────────────────────────────────────────────────

func TestQueueStore(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	mk := func(name string, d smartqueue.Domain, active bool) *queue.Queue {
		return &queue.Queue{
			Entity: smartqueue.NewEntity(base),
			ID:     id.NewQueueID(),
			Name:   name,
			Domain: d,
			Active: active,
		}
	}
	cardio := mk("Cardiology", smartqueue.DomainHealthcare, true)
	ortho := mk("Ortho", smartqueue.DomainHealthcare, false)
	teller := mk("Teller", smartqueue.DomainBanking, true)
	for _, q := range []*queue.Queue{ortho, teller, cardio} {
		if err := s.CreateQueue(ctx, q); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CreateQueue(ctx, cardio); !errors.Is(err, smartqueue.ErrQueueAlreadyExists) {
		t.Errorf("duplicate CreateQueue = %v", err)
	}

	all, _ := s.ListQueues(ctx, queue.ListOpts{})
	if len(all) != 3 || all[0].Name != "Cardiology" || all[2].Name != "Teller" {
		t.Errorf("ListQueues not ordered by name: %v", names(all))
	}
	hc, _ := s.ListQueues(ctx, queue.ListOpts{Domain: smartqueue.DomainHealthcare, ActiveOnly: true})
	if len(hc) != 1 || hc[0].Name != "Cardiology" {
		t.Errorf("filtered ListQueues = %v, want [Cardiology]", names(hc))
	}

	ortho.Active = true
	if err := s.UpdateQueue(ctx, ortho); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetQueue(ctx, ortho.ID)
	if !got.Active {
		t.Error("UpdateQueue did not persist Active")
	}
	if _, err := s.GetQueue(ctx, id.NewQueueID()); !errors.Is(err, smartqueue.ErrQueueNotFound) {
		t.Errorf("GetQueue unknown = %v", err)
	}
}

func names(qs []*queue.Queue) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Name
	}
	return out
}

func TestStaffStore(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	doc := &staff.Staff{ID: id.NewStaffID(), Name: "Dr. Rao", Role: smartqueue.RoleDoctor, Domain: smartqueue.DomainHealthcare, Available: true}
	off := &staff.Staff{ID: id.NewStaffID(), Name: "Dr. Iyer", Role: smartqueue.RoleDoctor, Domain: smartqueue.DomainHealthcare}
	_ = s.CreateStaff(ctx, doc)
	_ = s.CreateStaff(ctx, off)

	if err := s.CreateStaff(ctx, doc); !errors.Is(err, smartqueue.ErrStaffAlreadyExists) {
		t.Errorf("duplicate CreateStaff = %v", err)
	}
	avail, _ := s.ListStaff(ctx, staff.ListOpts{AvailableOnly: true})
	if len(avail) != 1 || avail[0].Name != "Dr. Rao" {
		t.Errorf("available staff = %d", len(avail))
	}

	off.Available = true
	_ = s.UpdateStaff(ctx, off)
	all, _ := s.ListStaff(ctx, staff.ListOpts{Domain: smartqueue.DomainHealthcare})
	if len(all) != 2 || all[0].Name != "Dr. Iyer" {
		t.Errorf("ListStaff not ordered by name")
	}
	if _, err := s.GetStaff(ctx, id.NewStaffID()); !errors.Is(err, smartqueue.ErrStaffNotFound) {
		t.Errorf("GetStaff unknown = %v", err)
	}
}

// ──────────────────────────────────────────────────
// History, Event and Audit tests
// ──────────────────────────────────────────────────

func TestHistoryStore(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	q := id.NewQueueID()

	for i := range 4 {
		r := &history.Record{
			ID:        id.NewHistoryID(),
			QueueID:   q,
			Domain:    smartqueue.DomainHealthcare,
			WaitTime:  i,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.AppendRecord(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.AppendRecord(ctx, &history.Record{ID: id.NewHistoryID(), QueueID: id.NewQueueID(), Domain: smartqueue.DomainBanking, CreatedAt: base})

	tests := []struct {
		name string
		opts history.ListOpts
		want int
	}{
		{"all", history.ListOpts{}, 5},
		{"queue", history.ListOpts{QueueID: q}, 4},
		{"domain", history.ListOpts{Domain: smartqueue.DomainBanking}, 1},
		{"since", history.ListOpts{QueueID: q, Since: base.Add(2 * time.Hour)}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := s.CountRecords(ctx, tt.opts)
			if n != int64(tt.want) {
				t.Errorf("CountRecords = %d, want %d", n, tt.want)
			}
			got, _ := s.ListRecords(ctx, tt.opts)
			if len(got) != tt.want {
				t.Errorf("ListRecords = %d, want %d", len(got), tt.want)
			}
		})
	}

	paged, _ := s.ListRecords(ctx, history.ListOpts{QueueID: q, Offset: 1, Limit: 2})
	if len(paged) != 2 || paged[0].WaitTime != 1 || paged[1].WaitTime != 2 {
		t.Errorf("paged records not oldest first")
	}
}

func TestEventStore(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	q := id.NewQueueID()
	tok := id.NewTokenID()

	for i := range 3 {
		c := &event.StatusChange{ID: id.NewEventID(), QueueID: q, TokenID: tok, At: base.Add(time.Duration(i) * time.Second)}
		_ = s.AppendChange(ctx, c)
	}
	_ = s.AppendChange(ctx, &event.StatusChange{ID: id.NewEventID(), QueueID: id.NewQueueID(), TokenID: id.NewTokenID(), At: base})

	since, _ := s.ListChanges(ctx, event.ListOpts{QueueID: q, Since: base})
	if len(since) != 2 {
		t.Errorf("Since is exclusive: got %d changes, want 2", len(since))
	}
	limited, _ := s.ListChanges(ctx, event.ListOpts{TokenID: tok, Limit: 1})
	if len(limited) != 1 || !limited[0].At.Equal(base) {
		t.Errorf("limited changes not oldest first")
	}
}

func TestRecordAudit(t *testing.T) {
	t.Parallel()
	s := New()

	evt := &audithook.AuditEvent{ID: id.NewAuditID(), Action: audithook.ActionTokenAdmitted}
	if err := s.Record(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	got := s.AuditEvents()
	if len(got) != 1 || got[0].Action != audithook.ActionTokenAdmitted {
		t.Fatalf("AuditEvents = %+v", got)
	}
}
