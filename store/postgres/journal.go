package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// ── History ───────────────────────────────────────────────────────

const historyColumns = `
	id, token_id, queue_id, domain, department, service_name, server_id, counter_number,
	priority, service_time, wait_time, queue_length, active_servers, hour_of_day,
	day_of_week, created_at`

// AppendRecord persists a new history record.
func (s *Store) AppendRecord(ctx context.Context, r *history.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO smartqueue_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.TokenID, r.QueueID, string(r.Domain), r.Department, r.ServiceName,
		r.ServerID, r.CounterNumber, string(r.Priority), r.ServiceTime, r.WaitTime,
		r.QueueLength, r.ActiveServers, r.HourOfDay, r.DayOfWeek, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("smartqueue/postgres: append record: %w", err)
	}
	return nil
}

// ListRecords returns records oldest first.
func (s *Store) ListRecords(ctx context.Context, opts history.ListOpts) ([]*history.Record, error) {
	f := historyFilter(opts)
	query := `SELECT ` + historyColumns + ` FROM smartqueue_history` + f.where() +
		` ORDER BY created_at ASC, id ASC` + f.page(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: list records: %w", err)
	}
	records, err := collect(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: scan records: %w", err)
	}
	return records, nil
}

// CountRecords returns the number of records matching opts.
func (s *Store) CountRecords(ctx context.Context, opts history.ListOpts) (int64, error) {
	f := historyFilter(opts)
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM smartqueue_history`+f.where(), f.args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("smartqueue/postgres: count records: %w", err)
	}
	return n, nil
}

func historyFilter(opts history.ListOpts) *filter {
	f := &filter{}
	if !opts.QueueID.IsNil() {
		f.add("queue_id = $%d", opts.QueueID.String())
	}
	if opts.Domain != "" {
		f.add("domain = $%d", string(opts.Domain))
	}
	if !opts.Since.IsZero() {
		f.add("created_at >= $%d", opts.Since)
	}
	return f
}

func scanRecord(row pgx.Row) (*history.Record, error) {
	var (
		r                history.Record
		domain, priority string
	)
	err := row.Scan(
		&r.ID, &r.TokenID, &r.QueueID, &domain, &r.Department, &r.ServiceName,
		&r.ServerID, &r.CounterNumber, &priority, &r.ServiceTime, &r.WaitTime,
		&r.QueueLength, &r.ActiveServers, &r.HourOfDay, &r.DayOfWeek, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Domain = smartqueue.Domain(domain)
	r.Priority = token.Priority(priority)
	return &r, nil
}

// ── Status change journal ─────────────────────────────────────────

const changeColumns = `
	id, token_id, token_number, queue_id, user_id, action, from_state, to_state,
	called, position, positions, at`

// AppendChange persists a status change.
func (s *Store) AppendChange(ctx context.Context, c *event.StatusChange) error {
	positions := c.Positions
	if positions == nil {
		positions = map[string]int{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO smartqueue_changes (`+changeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.TokenID, c.TokenNumber, c.QueueID, c.UserID, string(c.Action),
		string(c.From), string(c.To), c.Called, c.Position, positions, c.At,
	)
	if err != nil {
		return fmt.Errorf("smartqueue/postgres: append change: %w", err)
	}
	return nil
}

// ListChanges returns changes matching opts, oldest first.
func (s *Store) ListChanges(ctx context.Context, opts event.ListOpts) ([]*event.StatusChange, error) {
	var f filter
	if !opts.QueueID.IsNil() {
		f.add("queue_id = $%d", opts.QueueID.String())
	}
	if !opts.TokenID.IsNil() {
		f.add("token_id = $%d", opts.TokenID.String())
	}
	if !opts.Since.IsZero() {
		f.add("at > $%d", opts.Since)
	}
	query := `SELECT ` + changeColumns + ` FROM smartqueue_changes` + f.where() +
		` ORDER BY seq ASC` + f.page(opts.Limit, 0)

	rows, err := s.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: list changes: %w", err)
	}
	changes, err := collect(rows, scanChange)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: scan changes: %w", err)
	}
	return changes, nil
}

func scanChange(row pgx.Row) (*event.StatusChange, error) {
	var (
		c                event.StatusChange
		action, from, to string
	)
	err := row.Scan(
		&c.ID, &c.TokenID, &c.TokenNumber, &c.QueueID, &c.UserID, &action,
		&from, &to, &c.Called, &c.Position, &c.Positions, &c.At,
	)
	if err != nil {
		return nil, err
	}
	c.Action = token.Action(action)
	c.From = token.State(from)
	c.To = token.State(to)
	return &c, nil
}
