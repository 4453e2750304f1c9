package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/store/memory"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

var at = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func admitted(t *testing.T, queueID id.QueueID) *token.Token {
	t.Helper()
	tok := token.New(queueID, id.NewUserID(), smartqueue.DomainBanking, at)
	tok.Number = "B-0001"
	require.NoError(t, tok.Admit(at, token.Estimate{Minutes: 4}))
	tok.SetPosition(1)
	return tok
}

// ──────────────────────────────────────────────────
// StatusChange
// ──────────────────────────────────────────────────

func TestNewStatusChange(t *testing.T) {
	t.Parallel()

	tok := admitted(t, id.NewQueueID())
	positions := map[string]int{tok.ID.String(): 1}

	c := event.NewStatusChange(tok, token.ActionAdmit, token.StateCreated, positions, at)

	assert.False(t, c.ID.IsNil())
	assert.Equal(t, tok.ID, c.TokenID)
	assert.Equal(t, "B-0001", c.TokenNumber)
	assert.Equal(t, tok.QueueID, c.QueueID)
	assert.Equal(t, tok.UserID, c.UserID)
	assert.Equal(t, token.ActionAdmit, c.Action)
	assert.Equal(t, token.StateCreated, c.From)
	assert.Equal(t, token.StateActive, c.To)
	assert.False(t, c.Called)
	assert.Equal(t, positions, c.Positions)
	assert.Equal(t, at, c.At)
	require.NotNil(t, c.Position)
	assert.Equal(t, 1, *c.Position)

	// The change keeps its own copy of the position.
	tok.SetPosition(5)
	assert.Equal(t, 1, *c.Position)
}

func TestNewStatusChange_NoPosition(t *testing.T) {
	t.Parallel()

	tok := token.New(id.NewQueueID(), id.NewUserID(), smartqueue.DomainHealthcare, at)
	c := event.NewStatusChange(tok, token.ActionCancel, token.StateCreated, nil, at)

	assert.Nil(t, c.Position)
	assert.Nil(t, c.Positions)
}

// ──────────────────────────────────────────────────
// Journal
// ──────────────────────────────────────────────────

func TestJournal_AppendAndReplay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := event.NewJournal(memory.New())
	assert.Equal(t, "journal", j.Name())

	queueID := id.NewQueueID()
	first := admitted(t, queueID)
	second := admitted(t, queueID)
	elsewhere := admitted(t, id.NewQueueID())

	changes := []*event.StatusChange{
		event.NewStatusChange(first, token.ActionAdmit, token.StateCreated, nil, at),
		event.NewStatusChange(elsewhere, token.ActionAdmit, token.StateCreated, nil, at.Add(time.Second)),
		event.NewStatusChange(second, token.ActionAdmit, token.StateCreated, nil, at.Add(2*time.Second)),
		event.NewStatusChange(first, token.ActionCall, token.StateActive, nil, at.Add(3*time.Second)),
	}
	for _, c := range changes {
		require.NoError(t, j.OnStatusChanged(ctx, c))
	}

	tests := []struct {
		name  string
		since time.Time
		limit int
		want  []*event.StatusChange
	}{
		{"whole queue", time.Time{}, 0, []*event.StatusChange{changes[0], changes[2], changes[3]}},
		{"since is exclusive", at.Add(2 * time.Second), 0, []*event.StatusChange{changes[3]}},
		{"limit keeps the oldest", time.Time{}, 2, []*event.StatusChange{changes[0], changes[2]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.Replay(ctx, queueID, tt.since, tt.limit)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].ID, got[i].ID)
			}
		})
	}
}

func TestJournal_TokenTrail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	j := event.NewJournal(s)
	assert.Same(t, s, j.Store())

	queueID := id.NewQueueID()
	tok := admitted(t, queueID)
	other := admitted(t, queueID)

	require.NoError(t, j.OnStatusChanged(ctx, event.NewStatusChange(tok, token.ActionAdmit, token.StateCreated, nil, at)))
	require.NoError(t, j.OnStatusChanged(ctx, event.NewStatusChange(other, token.ActionAdmit, token.StateCreated, nil, at)))
	require.NoError(t, tok.Call(at.Add(time.Minute), id.Nil))
	require.NoError(t, j.OnStatusChanged(ctx, event.NewStatusChange(tok, token.ActionCall, token.StateActive, nil, at.Add(time.Minute))))

	trail, err := j.TokenTrail(ctx, tok.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, token.ActionAdmit, trail[0].Action)
	assert.Equal(t, token.ActionCall, trail[1].Action)
	assert.True(t, trail[1].Called)
}
