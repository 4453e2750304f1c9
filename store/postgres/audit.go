package postgres

import (
	"context"
	"fmt"
	"time"

	audithook "github.com/Jiyabhaviksadaria/smartqueue/audit_hook"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

// Record implements audithook.Recorder.
func (s *Store) Record(ctx context.Context, evt *audithook.AuditEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO smartqueue_audit_logs (
			id, action, resource, category, resource_id, metadata,
			outcome, severity, reason, actor_id, actor_role, ip, at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		evt.ID, evt.Action, evt.Resource, evt.Category, evt.ResourceID, evt.Metadata,
		evt.Outcome, evt.Severity, evt.Reason, evt.ActorID, evt.ActorRole, evt.IP, evt.At,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return fmt.Errorf("smartqueue/postgres: record audit event: %w", err)
	}
	return nil
}

// AuditTrail returns the audit events of one resource, oldest first.
func (s *Store) AuditTrail(ctx context.Context, resource, resourceID string, since time.Time) ([]*audithook.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, action, resource, category, resource_id, metadata,
			outcome, severity, reason, actor_id, actor_role, ip, at
		FROM smartqueue_audit_logs
		WHERE resource = $1 AND resource_id = $2 AND at >= $3
		ORDER BY at ASC`,
		resource, resourceID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: audit trail: %w", err)
	}
	defer rows.Close()

	var out []*audithook.AuditEvent
	for rows.Next() {
		var (
			evt   audithook.AuditEvent
			rawID string
		)
		if err := rows.Scan(
			&rawID, &evt.Action, &evt.Resource, &evt.Category, &evt.ResourceID, &evt.Metadata,
			&evt.Outcome, &evt.Severity, &evt.Reason, &evt.ActorID, &evt.ActorRole, &evt.IP, &evt.At,
		); err != nil {
			return nil, fmt.Errorf("smartqueue/postgres: scan audit event: %w", err)
		}
		if evt.ID, err = id.Parse(rawID); err != nil {
			return nil, fmt.Errorf("smartqueue/postgres: parse audit id %q: %w", rawID, err)
		}
		out = append(out, &evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: iterate audit events: %w", err)
	}
	return out, nil
}
