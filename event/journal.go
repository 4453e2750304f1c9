package event

import (
	"context"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

// Journal is an extension that appends every status change to a Store.
type Journal struct {
	store Store
}

// NewJournal creates a journal backed by s.
func NewJournal(s Store) *Journal {
	return &Journal{store: s}
}

// Name implements ext.Extension.
func (j *Journal) Name() string { return "journal" }

// OnStatusChanged implements ext.StatusChanged.
func (j *Journal) OnStatusChanged(ctx context.Context, c *StatusChange) error {
	return j.store.AppendChange(ctx, c)
}

// Replay returns the changes of a queue after since, oldest first.
func (j *Journal) Replay(ctx context.Context, queueID id.QueueID, since time.Time, limit int) ([]*StatusChange, error) {
	return j.store.ListChanges(ctx, ListOpts{QueueID: queueID, Since: since, Limit: limit})
}

// TokenTrail returns every change of one token, oldest first.
func (j *Journal) TokenTrail(ctx context.Context, tokenID id.TokenID) ([]*StatusChange, error) {
	return j.store.ListChanges(ctx, ListOpts{TokenID: tokenID})
}

// Store returns the underlying store.
func (j *Journal) Store() Store { return j.store }
