// Package history records completed service episodes. Records are
// append-only and form the training corpus of the wait estimator.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// Record is an immutable observation of one completed service.
type Record struct {
	ID            id.HistoryID      `json:"id"`
	TokenID       id.TokenID        `json:"token_id"`
	QueueID       id.QueueID        `json:"queue_id"`
	Domain        smartqueue.Domain `json:"domain"`
	Department    string            `json:"department,omitempty"`
	ServiceName   string            `json:"service_name,omitempty"`
	ServerID      id.StaffID        `json:"server_id,omitempty"`
	CounterNumber string            `json:"counter_number,omitempty"`
	Priority      token.Priority    `json:"priority"`

	// ServiceTime and WaitTime are whole minutes.
	ServiceTime int `json:"service_time"`
	WaitTime    int `json:"wait_time"`

	QueueLength   int `json:"queue_length"`
	ActiveServers int `json:"active_servers"`
	HourOfDay     int `json:"hour_of_day"`
	DayOfWeek     int `json:"day_of_week"`

	CreatedAt time.Time `json:"created_at"`
}

// Observation converts the record into a training sample.
func (r *Record) Observation() estimator.Observation {
	return estimator.Observation{
		Features: estimator.Features{
			QueueLength:   r.QueueLength,
			ActiveServers: r.ActiveServers,
			HourOfDay:     r.HourOfDay,
			DayOfWeek:     r.DayOfWeek,
		},
		WaitMinutes: float64(r.WaitTime),
	}
}

// ListOpts filters history queries.
type ListOpts struct {
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
	// Offset is the number of records to skip.
	Offset int
	// QueueID filters by queue. Nil means all queues.
	QueueID id.QueueID
	// Domain filters by domain. Empty means all domains.
	Domain smartqueue.Domain
	// Since excludes records created before it. Zero means no bound.
	Since time.Time
}

// Store is the append-only persistence contract for history records.
type Store interface {
	// AppendRecord persists a new record. Records are never updated.
	AppendRecord(ctx context.Context, r *Record) error

	// ListRecords returns records oldest first.
	ListRecords(ctx context.Context, opts ListOpts) ([]*Record, error)

	// CountRecords returns the number of records matching opts.
	CountRecords(ctx context.Context, opts ListOpts) (int64, error)
}

// Recorder turns completed tokens into history records.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: s, logger: logger}
}

// Build derives the record of a completed token. Context features are
// those seen when the token was admitted.
func Build(tok *token.Token, q *queue.Queue, now time.Time) (*Record, error) {
	if tok.State != token.StateCompleted || tok.ActualService == nil || tok.ActualWait == nil {
		return nil, fmt.Errorf("history: token %s is %s, not completed", tok.ID, tok.State)
	}
	f := estimator.FeaturesAt(tok.QueueLengthAtAdmission, tok.ActiveServersAtAdmission, tok.CreatedAt)
	r := &Record{
		ID:            id.NewHistoryID(),
		TokenID:       tok.ID,
		QueueID:       tok.QueueID,
		Domain:        tok.Domain,
		ServiceName:   tok.ServiceName,
		ServerID:      tok.ServerID,
		Priority:      tok.Priority,
		ServiceTime:   *tok.ActualService,
		WaitTime:      *tok.ActualWait,
		QueueLength:   f.QueueLength,
		ActiveServers: f.ActiveServers,
		HourOfDay:     f.HourOfDay,
		DayOfWeek:     f.DayOfWeek,
		CreatedAt:     now,
	}
	if q != nil {
		r.Department = q.Department
		r.CounterNumber = q.CounterNumber
		if r.ServiceName == "" {
			r.ServiceName = q.ServiceName
		}
	}
	return r, nil
}

// Record builds and appends the record of a completed token.
func (rec *Recorder) Record(ctx context.Context, tok *token.Token, q *queue.Queue, now time.Time) (*Record, error) {
	r, err := Build(tok, q, now)
	if err != nil {
		return nil, err
	}
	if err := rec.store.AppendRecord(ctx, r); err != nil {
		return nil, fmt.Errorf("history: append %s: %w", tok.ID, err)
	}
	rec.logger.Debug("service history recorded",
		slog.String("token_id", tok.ID.String()),
		slog.Int("service_time", r.ServiceTime),
		slog.Int("wait_time", r.WaitTime),
	)
	return r, nil
}

// Observations reads the full history as training samples.
func (rec *Recorder) Observations(ctx context.Context) ([]estimator.Observation, error) {
	records, err := rec.store.ListRecords(ctx, ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	out := make([]estimator.Observation, len(records))
	for i, r := range records {
		out[i] = r.Observation()
	}
	return out, nil
}
