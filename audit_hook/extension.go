package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/ext"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*Extension)(nil)
	_ ext.TokenAdmitted    = (*Extension)(nil)
	_ ext.TokenCalled      = (*Extension)(nil)
	_ ext.ServiceStarted   = (*Extension)(nil)
	_ ext.ServiceCompleted = (*Extension)(nil)
	_ ext.TokenCancelled   = (*Extension)(nil)
	_ ext.TokenExpired     = (*Extension)(nil)
	_ ext.QueueChanged     = (*Extension)(nil)
	_ ext.ModelTrained     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. The
// memory and postgres stores satisfy it.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	ID id.AuditID `json:"id"`

	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`

	// Who did it. Empty for scheduler-driven actions.
	ActorID   string `json:"actor_id,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`
	IP        string `json:"ip,omitempty"`

	At time.Time `json:"at"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges token lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Token lifecycle hooks ───────────────────────────

// OnTokenAdmitted implements ext.TokenAdmitted.
func (e *Extension) OnTokenAdmitted(ctx context.Context, t *token.Token) error {
	return e.record(ctx, ActionTokenAdmitted, SeverityInfo, OutcomeSuccess,
		ResourceToken, t.ID.String(), CategoryToken, nil,
		"token_number", t.Number,
		"queue_id", t.QueueID.String(),
		"priority", string(t.Priority),
		"estimated_wait", t.EstimatedWait,
		"model_version", t.ModelVersion,
	)
}

// OnTokenCalled implements ext.TokenCalled.
func (e *Extension) OnTokenCalled(ctx context.Context, t *token.Token, serverID id.StaffID) error {
	return e.record(ctx, ActionTokenCalled, SeverityInfo, OutcomeSuccess,
		ResourceToken, t.ID.String(), CategoryToken, nil,
		"token_number", t.Number,
		"queue_id", t.QueueID.String(),
		"server_id", serverID.String(),
	)
}

// OnServiceStarted implements ext.ServiceStarted.
func (e *Extension) OnServiceStarted(ctx context.Context, t *token.Token) error {
	return e.record(ctx, ActionServiceStarted, SeverityInfo, OutcomeSuccess,
		ResourceToken, t.ID.String(), CategoryToken, nil,
		"token_number", t.Number,
		"actual_wait", derefInt(t.ActualWait),
	)
}

// OnServiceCompleted implements ext.ServiceCompleted.
func (e *Extension) OnServiceCompleted(ctx context.Context, t *token.Token, rec *history.Record) error {
	kv := []any{
		"token_number", t.Number,
		"actual_service", derefInt(t.ActualService),
	}
	if rec != nil {
		kv = append(kv, "history_id", rec.ID.String())
	}
	return e.record(ctx, ActionServiceCompleted, SeverityInfo, OutcomeSuccess,
		ResourceToken, t.ID.String(), CategoryToken, nil, kv...)
}

// OnTokenCancelled implements ext.TokenCancelled.
func (e *Extension) OnTokenCancelled(ctx context.Context, t *token.Token, from token.State) error {
	return e.record(ctx, ActionTokenCancelled, SeverityWarning, OutcomeSuccess,
		ResourceToken, t.ID.String(), CategoryToken, nil,
		"token_number", t.Number,
		"from", string(from),
		"called", t.Called,
	)
}

// OnTokenExpired implements ext.TokenExpired.
func (e *Extension) OnTokenExpired(ctx context.Context, t *token.Token) error {
	return e.record(ctx, ActionTokenExpired, SeverityWarning, OutcomeFailure,
		ResourceToken, t.ID.String(), CategoryToken, nil,
		"token_number", t.Number,
		"queue_id", t.QueueID.String(),
	)
}

// ── Queue and estimator hooks ───────────────────────

// OnQueueChanged implements ext.QueueChanged.
func (e *Extension) OnQueueChanged(ctx context.Context, q *queue.Queue) error {
	return e.record(ctx, ActionQueueChanged, SeverityInfo, OutcomeSuccess,
		ResourceQueue, q.ID.String(), CategoryQueue, nil,
		"name", q.Name,
		"capacity", q.Capacity,
		"active", q.Active,
	)
}

// OnModelTrained implements ext.ModelTrained.
func (e *Extension) OnModelTrained(ctx context.Context, res estimator.TrainResult) error {
	if !res.Trained {
		return e.record(ctx, ActionModelTrainSkipped, SeverityWarning, OutcomeFailure,
			ResourceModel, "", CategoryEstimator, nil,
			"samples", res.Samples,
			"reason", res.SkipReason,
		)
	}
	return e.record(ctx, ActionModelTrained, SeverityInfo, OutcomeSuccess,
		ResourceModel, res.Version, CategoryEstimator, nil,
		"samples", res.Samples,
		"r_squared", res.RSquared,
	)
}

// ── Internal helpers ────────────────────────────────

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewAuditID(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		At:         e.now(),
	}
	if a, ok := smartqueue.ActorFromContext(ctx); ok {
		if !a.UserID.IsNil() {
			evt.ActorID = a.UserID.String()
		}
		evt.ActorRole = string(a.Role)
		evt.IP = a.IP
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
