// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: embedded SQL migrations, a partial index over active tokens
// for line restore, JSONB position snapshots in the status change journal,
// and an audit_logs table backing the audit hook.
package postgres
