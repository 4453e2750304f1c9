// Package staff defines the serving staff registry: doctors, bank staff and
// counter operators who call and serve tokens.
package staff

import (
	"context"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

// Staff is a server able to call tokens.
type Staff struct {
	smartqueue.Entity

	ID             id.StaffID        `json:"id"`
	UserID         id.UserID         `json:"user_id,omitempty"`
	Name           string            `json:"name"`
	Role           smartqueue.Role   `json:"role"`
	Domain         smartqueue.Domain `json:"domain"`
	Department     string            `json:"department,omitempty"`
	Specialization string            `json:"specialization,omitempty"`
	CounterNumber  string            `json:"counter_number,omitempty"`
	Available      bool              `json:"available"`

	// AvgServiceMinutes is the typical length of one service.
	AvgServiceMinutes int `json:"avg_service_minutes"`
}

// DefaultServiceMinutes is used when AvgServiceMinutes is unset.
const DefaultServiceMinutes = 15

// ListOpts filters staff queries.
type ListOpts struct {
	Domain        smartqueue.Domain
	Department    string
	AvailableOnly bool
}

// Store defines the persistence contract for staff.
type Store interface {
	// CreateStaff persists a new staff member.
	CreateStaff(ctx context.Context, s *Staff) error

	// GetStaff retrieves a staff member by ID.
	GetStaff(ctx context.Context, staffID id.StaffID) (*Staff, error)

	// UpdateStaff persists changes to an existing staff member.
	UpdateStaff(ctx context.Context, s *Staff) error

	// ListStaff returns staff matching opts ordered by name.
	ListStaff(ctx context.Context, opts ListOpts) ([]*Staff, error)
}

// Serves reports whether s may serve tokens of a queue with the given
// domain, department and bound server.
func (s *Staff) Serves(domain smartqueue.Domain, department string, bound id.StaffID) bool {
	if !s.Available || !s.Role.IsStaff() || s.Domain != domain {
		return false
	}
	if !bound.IsNil() {
		return bound.String() == s.ID.String()
	}
	return department == "" || s.Department == "" || s.Department == department
}
