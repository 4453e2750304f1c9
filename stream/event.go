// Package stream is the real-time broker for token status changes. It
// bridges the ext system to connected clients via topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// EventType identifies the kind of event.
type EventType string

const (
	// Token events.
	EventTokenAdmitted       EventType = "token.admitted"
	EventTokenCalled         EventType = "token.called"
	EventTokenServiceStarted EventType = "token.service_started"
	EventTokenCompleted      EventType = "token.completed"
	EventTokenCancelled      EventType = "token.cancelled"
	EventTokenExpired        EventType = "token.expired"

	// Queue events.
	EventQueueUpdated EventType = "queue.updated"

	// Estimator events.
	EventModelTrained EventType = "model.trained"
)

// tokenEventTypes maps lifecycle actions to event types.
var tokenEventTypes = map[token.Action]EventType{
	token.ActionAdmit:    EventTokenAdmitted,
	token.ActionCall:     EventTokenCalled,
	token.ActionStart:    EventTokenServiceStarted,
	token.ActionComplete: EventTokenCompleted,
	token.ActionCancel:   EventTokenCancelled,
	token.ActionExpire:   EventTokenExpired,
}

// Event is the envelope sent to subscribers.
type Event struct {
	// Type identifies the event.
	Type EventType `json:"type"`

	// Timestamp is when the underlying change happened.
	Timestamp time.Time `json:"ts"`

	// Topic is the primary entity topic of the event.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`

	// Also lists further entity topics the event is published on.
	Also []string `json:"also,omitempty"`
}

// TokenEventData is the payload of token events.
type TokenEventData struct {
	TokenID     string         `json:"token_id"`
	TokenNumber string         `json:"token_number"`
	QueueID     string         `json:"queue_id"`
	UserID      string         `json:"user_id,omitempty"`
	From        token.State    `json:"from"`
	To          token.State    `json:"to"`
	Called      bool           `json:"called"`
	Position    *int           `json:"position,omitempty"`
	Positions   map[string]int `json:"positions"`
}

// QueueEventData is the payload of queue events.
type QueueEventData struct {
	QueueID  string `json:"queue_id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Capacity int    `json:"capacity"`
	Active   bool   `json:"active"`
}

// ModelEventData is the payload of estimator events.
type ModelEventData struct {
	Trained  bool    `json:"trained"`
	Version  string  `json:"version,omitempty"`
	Samples  int     `json:"samples"`
	RSquared float64 `json:"r_squared"`
}
