package repository

import (
	"context"

	"voice-trial-agent/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByIdentity returns the newest entries first; limit <= 0 means no limit.
	ListByIdentity(ctx context.Context, email string, limit int) ([]*domain.AuditLog, error)
}
