package mongo

import (
	"fmt"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// ── History record model ──────────────────────────────────────────

type recordModel struct {
	ID            string    `bson:"_id"`
	TokenID       string    `bson:"token_id"`
	QueueID       string    `bson:"queue_id"`
	Domain        string    `bson:"domain"`
	Department    string    `bson:"department,omitempty"`
	ServiceName   string    `bson:"service_name,omitempty"`
	ServerID      string    `bson:"server_id,omitempty"`
	CounterNumber string    `bson:"counter_number,omitempty"`
	Priority      string    `bson:"priority"`
	ServiceTime   int       `bson:"service_time"`
	WaitTime      int       `bson:"wait_time"`
	QueueLength   int       `bson:"queue_length"`
	ActiveServers int       `bson:"active_servers"`
	HourOfDay     int       `bson:"hour_of_day"`
	DayOfWeek     int       `bson:"day_of_week"`
	CreatedAt     time.Time `bson:"created_at"`
}

func toRecordModel(r *history.Record) *recordModel {
	return &recordModel{
		ID:            r.ID.String(),
		TokenID:       r.TokenID.String(),
		QueueID:       r.QueueID.String(),
		Domain:        string(r.Domain),
		Department:    r.Department,
		ServiceName:   r.ServiceName,
		ServerID:      r.ServerID.String(),
		CounterNumber: r.CounterNumber,
		Priority:      string(r.Priority),
		ServiceTime:   r.ServiceTime,
		WaitTime:      r.WaitTime,
		QueueLength:   r.QueueLength,
		ActiveServers: r.ActiveServers,
		HourOfDay:     r.HourOfDay,
		DayOfWeek:     r.DayOfWeek,
		CreatedAt:     r.CreatedAt,
	}
}

func fromRecordModel(m *recordModel) (*history.Record, error) {
	r := &history.Record{
		Domain:        smartqueue.Domain(m.Domain),
		Department:    m.Department,
		ServiceName:   m.ServiceName,
		CounterNumber: m.CounterNumber,
		Priority:      token.Priority(m.Priority),
		ServiceTime:   m.ServiceTime,
		WaitTime:      m.WaitTime,
		QueueLength:   m.QueueLength,
		ActiveServers: m.ActiveServers,
		HourOfDay:     m.HourOfDay,
		DayOfWeek:     m.DayOfWeek,
		CreatedAt:     m.CreatedAt.UTC(),
	}
	if err := parseIDs(
		idField{m.ID, &r.ID},
		idField{m.TokenID, &r.TokenID},
		idField{m.QueueID, &r.QueueID},
		idField{m.ServerID, &r.ServerID},
	); err != nil {
		return nil, fmt.Errorf("smartqueue/mongo: record %s: %w", m.ID, err)
	}
	return r, nil
}

// ── Status change model ───────────────────────────────────────────

type changeModel struct {
	ID          string         `bson:"_id"`
	TokenID     string         `bson:"token_id"`
	TokenNumber string         `bson:"token_number"`
	QueueID     string         `bson:"queue_id"`
	UserID      string         `bson:"user_id,omitempty"`
	Action      string         `bson:"action"`
	From        string         `bson:"from"`
	To          string         `bson:"to"`
	Called      bool           `bson:"called"`
	Position    *int           `bson:"position,omitempty"`
	Positions   map[string]int `bson:"positions"`
	At          time.Time      `bson:"at"`
}

func toChangeModel(c *event.StatusChange) *changeModel {
	return &changeModel{
		ID:          c.ID.String(),
		TokenID:     c.TokenID.String(),
		TokenNumber: c.TokenNumber,
		QueueID:     c.QueueID.String(),
		UserID:      c.UserID.String(),
		Action:      string(c.Action),
		From:        string(c.From),
		To:          string(c.To),
		Called:      c.Called,
		Position:    c.Position,
		Positions:   c.Positions,
		At:          c.At,
	}
}

func fromChangeModel(m *changeModel) (*event.StatusChange, error) {
	c := &event.StatusChange{
		TokenNumber: m.TokenNumber,
		Action:      token.Action(m.Action),
		From:        token.State(m.From),
		To:          token.State(m.To),
		Called:      m.Called,
		Position:    m.Position,
		Positions:   m.Positions,
		At:          m.At.UTC(),
	}
	if err := parseIDs(
		idField{m.ID, &c.ID},
		idField{m.TokenID, &c.TokenID},
		idField{m.QueueID, &c.QueueID},
		idField{m.UserID, &c.UserID},
	); err != nil {
		return nil, fmt.Errorf("smartqueue/mongo: change %s: %w", m.ID, err)
	}
	return c, nil
}

type idField struct {
	raw string
	dst *id.ID
}

// parseIDs fills every dst from raw. Empty strings leave the Nil ID.
func parseIDs(fields ...idField) error {
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		parsed, err := id.Parse(f.raw)
		if err != nil {
			return err
		}
		*f.dst = parsed
	}
	return nil
}
