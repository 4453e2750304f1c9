package queue

import (
	"context"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

// Kind describes how tokens arrive at a queue.
type Kind string

const (
	KindWalkIn      Kind = "walk-in"
	KindAppointment Kind = "appointment"
	KindEmergency   Kind = "emergency"
)

// AnyServer is the label shown for queues not bound to a staff member.
const AnyServer = "Any Available"

// Queue is an admission line scoped to a domain and department.
type Queue struct {
	smartqueue.Entity

	ID            id.QueueID        `json:"id"`
	Name          string            `json:"name"`
	Domain        smartqueue.Domain `json:"domain"`
	Department    string            `json:"department,omitempty"`
	ServiceName   string            `json:"service_name,omitempty"`
	Kind          Kind              `json:"kind"`
	ServerID      id.StaffID        `json:"server_id,omitempty"`
	CounterNumber string            `json:"counter_number,omitempty"`

	// Capacity caps waiting plus called tokens.
	Capacity int  `json:"capacity"`
	Active   bool `json:"active"`

	// AdmissionRate limits admissions per second. Zero disables it.
	AdmissionRate  float64 `json:"admission_rate,omitempty"`
	AdmissionBurst int     `json:"admission_burst,omitempty"`
}

// Bound reports whether only one staff member serves this queue.
func (q *Queue) Bound() bool { return !q.ServerID.IsNil() }

// ServerLabel returns name when the queue is bound, AnyServer otherwise.
func (q *Queue) ServerLabel(name string) string {
	if !q.Bound() || name == "" {
		return AnyServer
	}
	return name
}

// LineConfig derives the ordering engine configuration.
func (q *Queue) LineConfig() Config {
	return Config{
		QueueID:        q.ID,
		Capacity:       q.Capacity,
		Active:         q.Active,
		AdmissionRate:  q.AdmissionRate,
		AdmissionBurst: q.AdmissionBurst,
	}
}

// ListOpts filters queue list queries.
type ListOpts struct {
	Domain     smartqueue.Domain
	Department string
	ActiveOnly bool
}

// Store defines the persistence contract for queues.
type Store interface {
	// CreateQueue persists a new queue.
	CreateQueue(ctx context.Context, q *Queue) error

	// GetQueue retrieves a queue by ID.
	GetQueue(ctx context.Context, queueID id.QueueID) (*Queue, error)

	// UpdateQueue persists changes to an existing queue.
	UpdateQueue(ctx context.Context, q *Queue) error

	// ListQueues returns queues matching opts ordered by name.
	ListQueues(ctx context.Context, opts ListOpts) ([]*Queue, error)
}
