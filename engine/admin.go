package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	mw "github.com/Jiyabhaviksadaria/smartqueue/middleware"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/staff"
)

// ──────────────────────────────────────────────────
// Queues
// ──────────────────────────────────────────────────

// CreateQueue persists a new queue and opens its line. A missing ID, kind
// or capacity is filled in.
func (eng *Engine) CreateQueue(ctx context.Context, q *queue.Queue) error {
	if q.ID.IsNil() {
		q.ID = id.NewQueueID()
	}
	op := &mw.Op{Name: "create_queue", QueueID: q.ID.String(), StaffOnly: true}
	err := eng.run(ctx, op, func(ctx context.Context) error {
		if !q.Domain.Valid() {
			return fmt.Errorf("%w: %q", smartqueue.ErrInvalidDomain, q.Domain)
		}
		if q.Kind == "" {
			q.Kind = queue.KindWalkIn
		}
		if q.Capacity <= 0 {
			q.Capacity = eng.rt.Config().DefaultCapacity
		}
		q.Entity = smartqueue.NewEntity(eng.rt.Now())
		if err := eng.store.CreateQueue(ctx, q); err != nil {
			return err
		}
		// A new queue has no tokens to load.
		_, err := eng.lines.Load(q.LineConfig(), func(*queue.Line) error { return nil })
		return err
	})
	if err != nil {
		return err
	}
	eng.extensions.EmitQueueChanged(ctx, q)
	return nil
}

// QueueUpdate is a partial queue change. Nil fields are left alone.
type QueueUpdate struct {
	Name           *string  `json:"name,omitempty"`
	Capacity       *int     `json:"capacity,omitempty"`
	Active         *bool    `json:"active,omitempty"`
	ServerID       *id.ID   `json:"server_id,omitempty"`
	AdmissionRate  *float64 `json:"admission_rate,omitempty"`
	AdmissionBurst *int     `json:"admission_burst,omitempty"`
}

// UpdateQueue applies u to a queue and reconfigures its line. Existing
// tokens keep their places; lowering capacity or deactivating only
// affects later admissions.
func (eng *Engine) UpdateQueue(ctx context.Context, queueID id.QueueID, u QueueUpdate) (*queue.Queue, error) {
	var q *queue.Queue
	op := &mw.Op{Name: "update_queue", QueueID: queueID.String(), StaffOnly: true}
	err := eng.run(ctx, op, func(ctx context.Context) error {
		var err error
		q, err = eng.line(ctx, queueID)
		if err != nil {
			return err
		}
		if u.Name != nil {
			q.Name = *u.Name
		}
		if u.Capacity != nil {
			if *u.Capacity <= 0 {
				return errors.New("capacity must be positive")
			}
			q.Capacity = *u.Capacity
		}
		if u.Active != nil {
			q.Active = *u.Active
		}
		if u.ServerID != nil {
			q.ServerID = *u.ServerID
		}
		if u.AdmissionRate != nil {
			q.AdmissionRate = *u.AdmissionRate
		}
		if u.AdmissionBurst != nil {
			q.AdmissionBurst = *u.AdmissionBurst
		}
		q.Touch(eng.rt.Now())
		if err := eng.store.UpdateQueue(ctx, q); err != nil {
			return err
		}
		eng.lines.Open(q.LineConfig())
		return nil
	})
	if err != nil {
		return nil, err
	}
	eng.extensions.EmitQueueChanged(ctx, q)
	return q, nil
}

// GetQueue returns a queue.
func (eng *Engine) GetQueue(ctx context.Context, queueID id.QueueID) (*queue.Queue, error) {
	return eng.store.GetQueue(ctx, queueID)
}

// ListQueues returns queues matching opts ordered by name.
func (eng *Engine) ListQueues(ctx context.Context, opts queue.ListOpts) ([]*queue.Queue, error) {
	return eng.store.ListQueues(ctx, opts)
}

// ──────────────────────────────────────────────────
// Staff
// ──────────────────────────────────────────────────

// RegisterStaff persists a new serving staff member.
func (eng *Engine) RegisterStaff(ctx context.Context, s *staff.Staff) error {
	if s.ID.IsNil() {
		s.ID = id.NewStaffID()
	}
	op := &mw.Op{Name: "register_staff", StaffOnly: true}
	return eng.run(ctx, op, func(ctx context.Context) error {
		if !s.Role.IsStaff() {
			return fmt.Errorf("register staff %s: role %q does not serve", s.ID, s.Role)
		}
		if !s.Domain.Valid() {
			return fmt.Errorf("%w: %q", smartqueue.ErrInvalidDomain, s.Domain)
		}
		if s.AvgServiceMinutes <= 0 {
			s.AvgServiceMinutes = staff.DefaultServiceMinutes
		}
		s.Entity = smartqueue.NewEntity(eng.rt.Now())
		return eng.store.CreateStaff(ctx, s)
	})
}

// SetStaffAvailability marks a staff member available or away. Only
// available staff count as active servers.
func (eng *Engine) SetStaffAvailability(ctx context.Context, staffID id.StaffID, available bool) (*staff.Staff, error) {
	var s *staff.Staff
	op := &mw.Op{Name: "set_staff_availability", StaffOnly: true}
	err := eng.run(ctx, op, func(ctx context.Context) error {
		var err error
		s, err = eng.store.GetStaff(ctx, staffID)
		if err != nil {
			return err
		}
		s.Available = available
		s.Touch(eng.rt.Now())
		return eng.store.UpdateStaff(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
