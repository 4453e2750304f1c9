// Package event defines token status changes and the journal that keeps
// them so reconnecting clients can catch up on what they missed.
package event

import (
	"context"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// StatusChange describes one lifecycle transition of a token together with
// the positions of its queue right after the transition.
type StatusChange struct {
	ID          id.EventID   `json:"id"`
	TokenID     id.TokenID   `json:"token_id"`
	TokenNumber string       `json:"token_number"`
	QueueID     id.QueueID   `json:"queue_id"`
	UserID      id.UserID    `json:"user_id"`
	Action      token.Action `json:"action"`
	From        token.State  `json:"from"`
	To          token.State  `json:"to"`
	Called      bool         `json:"called"`
	Position    *int         `json:"position,omitempty"`

	// Positions maps token ID to position for every token still in the
	// queue line.
	Positions map[string]int `json:"positions"`

	At time.Time `json:"at"`
}

// NewStatusChange captures a transition of tok from the given state.
func NewStatusChange(tok *token.Token, action token.Action, from token.State, positions map[string]int, at time.Time) *StatusChange {
	c := &StatusChange{
		ID:          id.NewEventID(),
		TokenID:     tok.ID,
		TokenNumber: tok.Number,
		QueueID:     tok.QueueID,
		UserID:      tok.UserID,
		Action:      action,
		From:        from,
		To:          tok.State,
		Called:      tok.Called,
		Positions:   positions,
		At:          at,
	}
	if tok.Position != nil {
		p := *tok.Position
		c.Position = &p
	}
	return c
}

// ListOpts filters journal queries.
type ListOpts struct {
	// QueueID filters by queue. Nil means all queues.
	QueueID id.QueueID
	// TokenID filters by token. Nil means all tokens.
	TokenID id.TokenID
	// Since excludes changes at or before it.
	Since time.Time
	// Limit caps the result. Zero means no limit.
	Limit int
}

// Store persists status changes.
type Store interface {
	// AppendChange persists a status change.
	AppendChange(ctx context.Context, c *StatusChange) error

	// ListChanges returns changes matching opts, oldest first.
	ListChanges(ctx context.Context, opts ListOpts) ([]*StatusChange, error)
}
