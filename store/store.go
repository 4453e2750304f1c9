// Package store defines the aggregate persistence interface. Each subsystem
// (token, queue, staff, history, event) defines its own store interface.
// The composite Store composes them all. Backends: Memory, Redis and
// Postgres. Mongo serves the history and event subsystems only.
package store

import (
	"context"

	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/staff"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// Store is the aggregate persistence interface.
// A single backend (memory, redis, postgres) implements all of them.
type Store interface {
	token.Store
	queue.Store
	staff.Store
	history.Store
	event.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// Split routes history and event persistence to a dedicated backend while
// the rest stays on Store. It is how a Mongo training corpus is paired
// with a Redis or Postgres primary.
type Split struct {
	Store
	Corpus Corpus
}

// Corpus is the append-heavy half of the persistence contract.
type Corpus interface {
	history.Store
	event.Store
}

var _ Store = (*Split)(nil)

func (s *Split) AppendRecord(ctx context.Context, r *history.Record) error {
	return s.Corpus.AppendRecord(ctx, r)
}

func (s *Split) ListRecords(ctx context.Context, opts history.ListOpts) ([]*history.Record, error) {
	return s.Corpus.ListRecords(ctx, opts)
}

func (s *Split) CountRecords(ctx context.Context, opts history.ListOpts) (int64, error) {
	return s.Corpus.CountRecords(ctx, opts)
}

func (s *Split) AppendChange(ctx context.Context, c *event.StatusChange) error {
	return s.Corpus.AppendChange(ctx, c)
}

func (s *Split) ListChanges(ctx context.Context, opts event.ListOpts) ([]*event.StatusChange, error) {
	return s.Corpus.ListChanges(ctx, opts)
}
