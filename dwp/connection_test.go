package dwp

import (
	"testing"
	"time"
)

func TestConnection(t *testing.T) {
	t.Parallel()

	identity := &Identity{Subject: "kiosk-1", Scopes: []string{ScopeTokenWrite}}
	conn := NewConnection("conn-1", identity, &JSONCodec{})

	if conn.ID != "conn-1" {
		t.Errorf("ID = %q, want %q", conn.ID, "conn-1")
	}
	if conn.Identity.Subject != "kiosk-1" {
		t.Errorf("Identity.Subject = %q, want %q", conn.Identity.Subject, "kiosk-1")
	}
	if conn.Codec.Name() != CodecNameJSON {
		t.Errorf("Codec.Name = %q, want %q", conn.Codec.Name(), CodecNameJSON)
	}
	if conn.ConnectedAt.IsZero() {
		t.Error("ConnectedAt should not be zero")
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close without transport: %v", err)
	}
}

func TestConnectionSubscriptions(t *testing.T) {
	t.Parallel()

	conn := NewConnection("conn-2", nil, &JSONCodec{})

	conn.AddSubscription("tokens")
	conn.AddSubscription("queue:q_1")
	if got := len(conn.Subscriptions()); got != 2 {
		t.Fatalf("len(Subscriptions) = %d, want 2", got)
	}
	if !conn.HasSubscription("queue:q_1") {
		t.Error("expected queue:q_1 subscription")
	}

	conn.RemoveSubscription("tokens")
	subs := conn.Subscriptions()
	if len(subs) != 1 || subs[0] != "queue:q_1" {
		t.Fatalf("Subscriptions = %v, want [queue:q_1]", subs)
	}
}

func TestConnectionTouch(t *testing.T) {
	t.Parallel()

	conn := NewConnection("conn-3", nil, &JSONCodec{})
	before := conn.LastActivity.Load().(time.Time) //nolint:errcheck // always time.Time

	time.Sleep(2 * time.Millisecond)
	conn.Touch()

	after := conn.LastActivity.Load().(time.Time) //nolint:errcheck // always time.Time
	if !after.After(before) {
		t.Errorf("LastActivity not advanced: %v -> %v", before, after)
	}
}

func TestConnectionManager(t *testing.T) {
	t.Parallel()

	cm := NewConnectionManager()
	cm.Add(NewConnection("a", nil, &JSONCodec{}))
	cm.Add(NewConnection("b", nil, &MsgpackCodec{}))

	if cm.Count() != 2 {
		t.Errorf("Count = %d, want 2", cm.Count())
	}
	if c, ok := cm.Get("b"); !ok || c.Codec.Name() != CodecNameMsgpack {
		t.Errorf("Get(b) = %v, %v", c, ok)
	}

	cm.Remove("a")
	if _, ok := cm.Get("a"); ok {
		t.Error("a should be removed")
	}
	if len(cm.All()) != 1 {
		t.Errorf("len(All) = %d, want 1", len(cm.All()))
	}
}
