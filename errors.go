package smartqueue

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("smartqueue: no store configured")
	ErrStoreClosed     = errors.New("smartqueue: store closed")
	ErrMigrationFailed = errors.New("smartqueue: migration failed")

	// Not found errors.
	ErrTokenNotFound   = errors.New("smartqueue: token not found")
	ErrQueueNotFound   = errors.New("smartqueue: queue not found")
	ErrStaffNotFound   = errors.New("smartqueue: staff not found")
	ErrHistoryNotFound = errors.New("smartqueue: history record not found")

	// Conflict errors.
	ErrTokenAlreadyExists = errors.New("smartqueue: token already exists")
	ErrQueueAlreadyExists = errors.New("smartqueue: queue already exists")
	ErrStaffAlreadyExists = errors.New("smartqueue: staff already exists")

	// Admission errors.
	ErrQueueFull          = errors.New("smartqueue: queue full")
	ErrQueueInactive      = errors.New("smartqueue: queue inactive")
	ErrAdmissionThrottled = errors.New("smartqueue: admission throttled")
	ErrInvalidDomain      = errors.New("smartqueue: invalid domain")

	// Serving errors.
	ErrServerUnavailable = errors.New("smartqueue: server unavailable")
	ErrForbidden         = errors.New("smartqueue: operation not permitted for caller role")

	// State errors.
	ErrInvalidTransition = errors.New("smartqueue: invalid transition")

	// ErrInconsistentOrder means a queue line disagrees with its own index.
	// It signals internal corruption and is always surfaced.
	ErrInconsistentOrder = errors.New("smartqueue: inconsistent queue order")
)

// TransitionError reports a lifecycle action attempted from a state that
// does not allow it. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	TokenID string
	From    string
	Action  string
}

func (e *TransitionError) Error() string {
	if e.TokenID == "" {
		return fmt.Sprintf("smartqueue: invalid transition: cannot %s from %s", e.Action, e.From)
	}
	return fmt.Sprintf("smartqueue: invalid transition: cannot %s token %s from %s", e.Action, e.TokenID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
