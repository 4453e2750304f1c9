package smartqueue

import "time"

// Entity carries the bookkeeping timestamps shared by persisted entities.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity stamped at now.
func NewEntity(now time.Time) Entity {
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch sets UpdatedAt to now.
func (e *Entity) Touch(now time.Time) { e.UpdatedAt = now }
