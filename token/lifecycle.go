package token

import (
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

// Action names a lifecycle transition.
type Action string

const (
	ActionAdmit    Action = "admit"
	ActionCall     Action = "call"
	ActionStart    Action = "start_service"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionExpire   Action = "expire"
)

// Estimate is the wait prediction attached to a token.
type Estimate struct {
	Minutes      int
	Confidence   float64
	ModelVersion string
}

// Admit moves a created token into its queue.
func (t *Token) Admit(now time.Time, est Estimate) error {
	if t.State != StateCreated {
		return t.invalid(ActionAdmit)
	}
	t.State = StateActive
	t.CreatedAt = now
	t.Reestimate(est)
	t.Touch(now)
	return nil
}

// Reestimate replaces the wait prediction.
func (t *Token) Reestimate(est Estimate) {
	t.EstimatedWait = est.Minutes
	t.PredictionConfidence = est.Confidence
	t.ModelVersion = est.ModelVersion
}

// Call marks an active token as next to serve and binds it to server.
// The token stays active; service begins with StartService.
func (t *Token) Call(now time.Time, server id.StaffID) error {
	if t.State != StateActive || t.Called {
		return t.invalid(ActionCall)
	}
	now = notBefore(now, t.CreatedAt)
	t.Called = true
	t.CalledAt = &now
	t.ServerID = server
	t.SetPosition(0)
	t.Touch(now)
	return nil
}

// StartService begins service of a called token and records the wait.
func (t *Token) StartService(now time.Time) error {
	if t.State != StateActive || !t.Called {
		return t.invalid(ActionStart)
	}
	now = notBefore(now, *t.CalledAt)
	t.State = StateInService
	t.ServiceStartedAt = &now
	wait := minutes(now.Sub(t.CreatedAt))
	t.ActualWait = &wait
	t.Position = nil
	t.Touch(now)
	return nil
}

// Complete finishes service and records its duration.
func (t *Token) Complete(now time.Time) error {
	if t.State != StateInService {
		return t.invalid(ActionComplete)
	}
	now = notBefore(now, *t.ServiceStartedAt)
	t.State = StateCompleted
	t.ServiceCompletedAt = &now
	svc := minutes(now.Sub(*t.ServiceStartedAt))
	t.ActualService = &svc
	t.Touch(now)
	return nil
}

// Cancel withdraws an active or in-service token.
func (t *Token) Cancel(now time.Time) error {
	if t.State != StateActive && t.State != StateInService {
		return t.invalid(ActionCancel)
	}
	now = notBefore(now, t.lastStamp())
	t.State = StateCancelled
	t.CancelledAt = &now
	t.Position = nil
	t.Touch(now)
	return nil
}

// Expire marks a called token that never started service.
func (t *Token) Expire(now time.Time) error {
	if t.State != StateActive || !t.Called {
		return t.invalid(ActionExpire)
	}
	now = notBefore(now, *t.CalledAt)
	t.State = StateExpired
	t.ExpiredAt = &now
	t.Position = nil
	t.Touch(now)
	return nil
}

// Overdue reports whether t was called more than grace ago and has not
// started service.
func (t *Token) Overdue(now time.Time, grace time.Duration) bool {
	return t.State == StateActive && t.Called && t.CalledAt != nil &&
		now.Sub(*t.CalledAt) > grace
}

// SetPosition records the queue position.
func (t *Token) SetPosition(p int) { t.Position = &p }

func (t *Token) lastStamp() time.Time {
	if t.ServiceStartedAt != nil {
		return *t.ServiceStartedAt
	}
	if t.CalledAt != nil {
		return *t.CalledAt
	}
	return t.CreatedAt
}

func (t *Token) invalid(a Action) error {
	return &smartqueue.TransitionError{
		TokenID: t.ID.String(),
		From:    t.stateLabel(),
		Action:  string(a),
	}
}

func (t *Token) stateLabel() string {
	if t.State == StateActive && t.Called {
		return "active (called)"
	}
	return string(t.State)
}

// notBefore keeps lifecycle stamps non-decreasing under clock skew.
func notBefore(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}
