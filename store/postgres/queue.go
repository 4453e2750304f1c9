package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/staff"
)

// ── Queues ────────────────────────────────────────────────────────

const queueColumns = `
	id, name, domain, department, service_name, kind, server_id, counter_number,
	capacity, active, admission_rate, admission_burst, created_at, updated_at`

// CreateQueue persists a new queue.
func (s *Store) CreateQueue(ctx context.Context, q *queue.Queue) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO smartqueue_queues (`+queueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		queueArgs(q)...,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return smartqueue.ErrQueueAlreadyExists
		}
		return fmt.Errorf("smartqueue/postgres: create queue: %w", err)
	}
	return nil
}

// GetQueue retrieves a queue by ID.
func (s *Store) GetQueue(ctx context.Context, queueID id.QueueID) (*queue.Queue, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM smartqueue_queues WHERE id = $1`,
		queueID.String(),
	)
	q, err := scanQueue(row)
	if err != nil {
		if isNoRows(err) {
			return nil, smartqueue.ErrQueueNotFound
		}
		return nil, fmt.Errorf("smartqueue/postgres: get queue: %w", err)
	}
	return q, nil
}

// UpdateQueue persists changes to an existing queue.
func (s *Store) UpdateQueue(ctx context.Context, q *queue.Queue) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE smartqueue_queues SET
			name = $2, domain = $3, department = $4, service_name = $5, kind = $6,
			server_id = $7, counter_number = $8, capacity = $9, active = $10,
			admission_rate = $11, admission_burst = $12, created_at = $13, updated_at = $14
		WHERE id = $1`,
		queueArgs(q)...,
	)
	if err != nil {
		return fmt.Errorf("smartqueue/postgres: update queue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return smartqueue.ErrQueueNotFound
	}
	return nil
}

// ListQueues returns queues matching opts ordered by name.
func (s *Store) ListQueues(ctx context.Context, opts queue.ListOpts) ([]*queue.Queue, error) {
	var f filter
	if opts.Domain != "" {
		f.add("domain = $%d", string(opts.Domain))
	}
	if opts.Department != "" {
		f.add("department = $%d", opts.Department)
	}
	if opts.ActiveOnly {
		f.conds = append(f.conds, "active")
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM smartqueue_queues`+f.where()+` ORDER BY name`,
		f.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: list queues: %w", err)
	}
	queues, err := collect(rows, scanQueue)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: scan queues: %w", err)
	}
	return queues, nil
}

func queueArgs(q *queue.Queue) []any {
	return []any{
		q.ID, q.Name, string(q.Domain), q.Department, q.ServiceName, string(q.Kind),
		q.ServerID, q.CounterNumber, q.Capacity, q.Active,
		q.AdmissionRate, q.AdmissionBurst, q.CreatedAt, q.UpdatedAt,
	}
}

func scanQueue(row pgx.Row) (*queue.Queue, error) {
	var (
		q            queue.Queue
		domain, kind string
	)
	err := row.Scan(
		&q.ID, &q.Name, &domain, &q.Department, &q.ServiceName, &kind,
		&q.ServerID, &q.CounterNumber, &q.Capacity, &q.Active,
		&q.AdmissionRate, &q.AdmissionBurst, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.Domain = smartqueue.Domain(domain)
	q.Kind = queue.Kind(kind)
	return &q, nil
}

// ── Staff ─────────────────────────────────────────────────────────

const staffColumns = `
	id, user_id, name, role, domain, department, specialization, counter_number,
	available, avg_service_minutes, created_at, updated_at`

// CreateStaff persists a new staff member.
func (s *Store) CreateStaff(ctx context.Context, st *staff.Staff) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO smartqueue_staff (`+staffColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		staffArgs(st)...,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return smartqueue.ErrStaffAlreadyExists
		}
		return fmt.Errorf("smartqueue/postgres: create staff: %w", err)
	}
	return nil
}

// GetStaff retrieves a staff member by ID.
func (s *Store) GetStaff(ctx context.Context, staffID id.StaffID) (*staff.Staff, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+staffColumns+` FROM smartqueue_staff WHERE id = $1`,
		staffID.String(),
	)
	st, err := scanStaff(row)
	if err != nil {
		if isNoRows(err) {
			return nil, smartqueue.ErrStaffNotFound
		}
		return nil, fmt.Errorf("smartqueue/postgres: get staff: %w", err)
	}
	return st, nil
}

// UpdateStaff persists changes to an existing staff member.
func (s *Store) UpdateStaff(ctx context.Context, st *staff.Staff) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE smartqueue_staff SET
			user_id = $2, name = $3, role = $4, domain = $5, department = $6,
			specialization = $7, counter_number = $8, available = $9,
			avg_service_minutes = $10, created_at = $11, updated_at = $12
		WHERE id = $1`,
		staffArgs(st)...,
	)
	if err != nil {
		return fmt.Errorf("smartqueue/postgres: update staff: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return smartqueue.ErrStaffNotFound
	}
	return nil
}

// ListStaff returns staff matching opts ordered by name.
func (s *Store) ListStaff(ctx context.Context, opts staff.ListOpts) ([]*staff.Staff, error) {
	var f filter
	if opts.Domain != "" {
		f.add("domain = $%d", string(opts.Domain))
	}
	if opts.Department != "" {
		f.add("department = $%d", opts.Department)
	}
	if opts.AvailableOnly {
		f.conds = append(f.conds, "available")
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+staffColumns+` FROM smartqueue_staff`+f.where()+` ORDER BY name`,
		f.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: list staff: %w", err)
	}
	list, err := collect(rows, scanStaff)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: scan staff: %w", err)
	}
	return list, nil
}

func staffArgs(st *staff.Staff) []any {
	return []any{
		st.ID, st.UserID, st.Name, string(st.Role), string(st.Domain), st.Department,
		st.Specialization, st.CounterNumber, st.Available, st.AvgServiceMinutes,
		st.CreatedAt, st.UpdatedAt,
	}
}

func scanStaff(row pgx.Row) (*staff.Staff, error) {
	var (
		st           staff.Staff
		role, domain string
	)
	err := row.Scan(
		&st.ID, &st.UserID, &st.Name, &role, &domain, &st.Department,
		&st.Specialization, &st.CounterNumber, &st.Available, &st.AvgServiceMinutes,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.Role = smartqueue.Role(role)
	st.Domain = smartqueue.Domain(domain)
	return &st, nil
}
