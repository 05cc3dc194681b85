package domain

import "time"

// AuditLog records one security-relevant action taken on the trial (login, revoke, reset...).
type AuditLog struct {
	ID            string
	IdentityEmail string // empty for anonymous or system actions
	Action        string
	Resource      string
	IP            string
	Metadata      string
	CreatedAt     time.Time
}
