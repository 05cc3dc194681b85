package repository

import (
	"context"
	"database/sql"
	"time"

	"voice-trial-agent/internal/audit/domain"
	"voice-trial-agent/internal/db"
)

const (
	insertAuditLog = `INSERT INTO audit_logs (id, identity_email, action, resource, ip, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	listAuditLogs  = `SELECT id, identity_email, action, resource, ip, metadata, created_at FROM audit_logs WHERE identity_email = ? ORDER BY created_at DESC, id DESC`
)

// SQLRepository persists audit logs in the audit_logs table (Postgres or SQLite).
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns an audit log repository backed by conn.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

// Create persists the audit log. The audit log must have ID set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(insertAuditLog),
		a.ID, a.IdentityEmail, a.Action, a.Resource, a.IP, a.Metadata, a.CreatedAt.UnixMilli())
	return err
}

// ListByIdentity returns audit logs for email, newest first.
func (r *SQLRepository) ListByIdentity(ctx context.Context, email string, limit int) ([]*domain.AuditLog, error) {
	q := listAuditLogs
	args := []any{email}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a       domain.AuditLog
			created int64
		)
		if err := rows.Scan(&a.ID, &a.IdentityEmail, &a.Action, &a.Resource, &a.IP, &a.Metadata, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, &a)
	}
	return out, rows.Err()
}
