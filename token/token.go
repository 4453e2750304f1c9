// Package token defines the service token entity, its lifecycle state
// machine, and the priority classes that order it inside a queue.
package token

import (
	"fmt"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

// State represents the lifecycle state of a token.
type State string

const (
	// StateCreated means the token exists but has not been admitted.
	StateCreated State = "created"
	// StateActive means the token is queued. A called token stays active
	// until service starts.
	StateActive State = "active"
	// StateInService means a server is currently serving the token.
	StateInService State = "in_service"
	// StateCompleted means service finished.
	StateCompleted State = "completed"
	// StateExpired means the token was called but service never started
	// within the grace period.
	StateExpired State = "expired"
	// StateCancelled means the user or an operator withdrew the token.
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateExpired || s == StateCancelled
}

// Priority is the urgency classification of a token.
type Priority string

const (
	PriorityEmergency Priority = "emergency"
	PriorityHigh      Priority = "high"
	PriorityMedium    Priority = "medium"
	PriorityNormal    Priority = "normal"
)

// Rank maps a priority to its ordering class; lower is served first.
// High and medium share a class and are ordered by arrival.
func (p Priority) Rank() int {
	switch p {
	case PriorityEmergency:
		return 0
	case PriorityHigh, PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityEmergency, PriorityHigh, PriorityMedium, PriorityNormal:
		return true
	}
	return false
}

// Token is one admission request moving through a queue.
type Token struct {
	smartqueue.Entity

	ID       id.TokenID        `json:"id"`
	Number   string            `json:"number"`
	Seq      uint64            `json:"seq"`
	UserID   id.UserID         `json:"user_id"`
	QueueID  id.QueueID        `json:"queue_id"`
	Domain   smartqueue.Domain `json:"domain"`
	Priority Priority          `json:"priority"`

	// SeverityScore is 1-10 for healthcare tokens, 0 when unset.
	SeverityScore    int        `json:"severity_score,omitempty"`
	Symptoms         string     `json:"symptoms,omitempty"`
	ConsultationType string     `json:"consultation_type,omitempty"`
	ServiceName      string     `json:"service_name,omitempty"`
	AppointmentAt    *time.Time `json:"appointment_at,omitempty"`

	State    State      `json:"state"`
	Called   bool       `json:"called"`
	Position *int       `json:"position,omitempty"`
	ServerID id.StaffID `json:"server_id,omitempty"`

	CalledAt           *time.Time `json:"called_at,omitempty"`
	ServiceStartedAt   *time.Time `json:"service_started_at,omitempty"`
	ServiceCompletedAt *time.Time `json:"service_completed_at,omitempty"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`

	// Wait and service figures are whole minutes.
	EstimatedWait        int     `json:"estimated_wait"`
	PredictionConfidence float64 `json:"prediction_confidence"`
	ModelVersion         string  `json:"model_version,omitempty"`
	ActualWait           *int    `json:"actual_wait,omitempty"`
	ActualService        *int    `json:"actual_service,omitempty"`

	QueueLengthAtAdmission   int `json:"queue_length_at_admission"`
	ActiveServersAtAdmission int `json:"active_servers_at_admission"`
}

// New returns a token in the created state.
func New(queueID id.QueueID, userID id.UserID, domain smartqueue.Domain, now time.Time) *Token {
	return &Token{
		Entity:   smartqueue.NewEntity(now),
		ID:       id.NewTokenID(),
		QueueID:  queueID,
		UserID:   userID,
		Domain:   domain,
		Priority: PriorityNormal,
		State:    StateCreated,
	}
}

// Clone returns a deep copy of t.
func (t *Token) Clone() *Token {
	cp := *t
	cp.AppointmentAt = cloneTime(t.AppointmentAt)
	cp.CalledAt = cloneTime(t.CalledAt)
	cp.ServiceStartedAt = cloneTime(t.ServiceStartedAt)
	cp.ServiceCompletedAt = cloneTime(t.ServiceCompletedAt)
	cp.ExpiredAt = cloneTime(t.ExpiredAt)
	cp.CancelledAt = cloneTime(t.CancelledAt)
	cp.Position = cloneInt(t.Position)
	cp.ActualWait = cloneInt(t.ActualWait)
	cp.ActualService = cloneInt(t.ActualService)
	return &cp
}

// Queued reports whether t holds a place in its queue line.
func (t *Token) Queued() bool { return t.State == StateActive }

// DisplayPriority collapses the priority into the three labels shown on
// client screens: emergency, senior and normal.
func (t *Token) DisplayPriority() string {
	switch t.Priority.Rank() {
	case 0:
		return "emergency"
	case 1:
		return "senior"
	default:
		return "normal"
	}
}

// DisplayID is the human-facing identifier.
func (t *Token) DisplayID() string { return t.Number }

// DisplayType is the service context label.
func (t *Token) DisplayType() string { return string(t.Domain) }

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// FormatNumber renders the display number of a token, e.g. "H-0042".
func FormatNumber(domain smartqueue.Domain, seq uint64) string {
	return fmt.Sprintf("%s-%04d", domain.NumberPrefix(), seq)
}
