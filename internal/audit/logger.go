package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"voice-trial-agent/internal/audit/domain"
	auditrepo "voice-trial-agent/internal/audit/repository"
)

// Actions recorded by the client, the admin panel and the credential proxy.
const (
	ActionLoginSuccess    = "login_success"
	ActionLoginFailure    = "login_failure"
	ActionLogout          = "logout"
	ActionRevoke          = "revoke"
	ActionResetTrial      = "reset_trial"
	ActionClearAll        = "clear_all"
	ActionPolicyViolation = "policy_violation"
	ActionIssueCredential = "issue_credential"
)

// Resources the actions apply to.
const (
	ResourceIdentity   = "identity"
	ResourceSession    = "session"
	ResourceStore      = "store"
	ResourceCredential = "credential"
)

// IPExtractor returns the client IP from the request context. The CLI has none; the proxy uses the HTTP middleware value.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, email, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	nowF        func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo.
// ipExtractor may be nil; then IP is recorded as "local".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, nowF: time.Now}
}

// LogEvent writes one audit log entry.
func (l *Logger) LogEvent(ctx context.Context, email, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "local"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:            uuid.New().String(),
		IdentityEmail: email,
		Action:        action,
		Resource:      resource,
		IP:            ip,
		Metadata:      metadata,
		CreatedAt:     l.nowF().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}
