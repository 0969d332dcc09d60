package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx so audit rows can be
// written standalone or inside a caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLog represents one immutable row in audit_logs: who did what to which
// entity, with before and after snapshots.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	OldValue map[string]any
	NewValue map[string]any
	At       time.Time
}

// RecordAudit persists the entry through the given executor. Workflows pass
// their open transaction so the audit row commits atomically with the mutation.
func RecordAudit(ctx context.Context, db Execer, log AuditLog) error {
	if db == nil {
		return errors.New("audit executor required")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	oldJSON, err := json.Marshal(log.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(log.NewValue)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, old_value, new_value, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, '0001-01-01 00:00:00+00'::timestamptz), NOW()))`,
		log.ActorID, log.Action, log.Entity, log.EntityID, oldJSON, newJSON, log.At)
	return err
}

// AuditLogger writes records into audit_logs outside any caller transaction.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry on its own connection.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	return RecordAudit(ctx, l.pool, log)
}
