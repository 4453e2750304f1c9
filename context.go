package smartqueue

import (
	"context"

	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

// Role is the caller role supplied by the auth collaborator.
type Role string

const (
	RolePatient         Role = "patient"
	RoleCustomer        Role = "customer"
	RoleAdmin           Role = "admin"
	RoleDoctor          Role = "doctor"
	RoleBankStaff       Role = "bank_staff"
	RoleCounterOperator Role = "counter_operator"
)

// IsStaff reports whether the role serves tokens.
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleBankStaff, RoleCounterOperator:
		return true
	}
	return false
}

// Actor is the caller identity and flags as seen by the scheduling core.
// SmartQueue does not authenticate; it treats these fields as opaque input.
type Actor struct {
	UserID id.UserID `json:"user_id"`
	Role   Role      `json:"role"`
	VIP    bool      `json:"vip,omitempty"`
	Senior bool      `json:"senior,omitempty"`
	IP     string    `json:"ip,omitempty"`
}

// Staff reports whether the actor's role serves tokens.
func (a Actor) Staff() bool { return a.Role.IsStaff() }

type actorKey struct{}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor stored in ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
