// Package admin is the password-gated administrative surface: trial resets, revocations and data wipes.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voice-trial-agent/internal/audit"
	"voice-trial-agent/internal/identity/credstore"
	identitydomain "voice-trial-agent/internal/identity/domain"
	"voice-trial-agent/internal/policy/engine"
	"voice-trial-agent/internal/security"
)

// InvalidPasswordMessage is shown when unlocking fails.
const InvalidPasswordMessage = "Invalid admin password"

var (
	ErrInvalidAdminPassword = errors.New(InvalidPasswordMessage)
	ErrUnknownIdentity      = errors.New("unknown identity")
)

const trialPrefix = "trial_"

// TrialKey returns the legacy per-identity trial marker key.
func TrialKey(email string) string {
	return trialPrefix + identitydomain.NormalizeEmail(email)
}

// Directory lists identities and reports their revocation state.
type Directory interface {
	Emails() []string
	Lookup(email string) (*identitydomain.Identity, bool)
	IsRevoked(ctx context.Context, email string) (bool, error)
}

// Accounts performs revocations and wipes with their logout side effects.
type Accounts interface {
	RevokeUser(ctx context.Context, email string) error
	ClearAllData(ctx context.Context) error
}

// KV deletes store entries.
type KV interface {
	DeleteAll(ctx context.Context, keys ...string) error
}

// Gate checks the admin password and hands out a Panel.
type Gate struct {
	password  string
	directory Directory
	accounts  Accounts
	kv        KV
	audit     audit.AuditLogger
}

// NewGate returns a Gate for the configured admin password. An empty password disables the panel.
func NewGate(password string, directory Directory, accounts Accounts, kv KV, auditLogger audit.AuditLogger) *Gate {
	return &Gate{password: password, directory: directory, accounts: accounts, kv: kv, audit: auditLogger}
}

// Unlock returns the Panel if password matches. The comparison is constant-time.
func (g *Gate) Unlock(password string) (*Panel, error) {
	if !security.SecretEqual(password, g.password) {
		return nil, ErrInvalidAdminPassword
	}
	return &Panel{gate: g}, nil
}

// Panel is an unlocked admin session.
type Panel struct {
	gate *Gate
}

// Entry is one identity row in the panel.
type Entry struct {
	Email   string
	Name    string
	Revoked bool
}

// Identities lists every configured identity with its revocation state.
func (p *Panel) Identities(ctx context.Context) ([]Entry, error) {
	emails := p.gate.directory.Emails()
	out := make([]Entry, 0, len(emails))
	for _, email := range emails {
		id, _ := p.gate.directory.Lookup(email)
		revoked, err := p.gate.directory.IsRevoked(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("admin: revocation for %s: %w", email, err)
		}
		e := Entry{Email: email, Revoked: revoked}
		if id != nil {
			e.Name = id.DisplayName
		}
		out = append(out, e)
	}
	return out, nil
}

// ResetTrial clears the revocation flag and all session state for email so it can log in
// and start a fresh trial.
func (p *Panel) ResetTrial(ctx context.Context, email string) error {
	email, err := p.known(email)
	if err != nil {
		return err
	}
	keys := append([]string{TrialKey(email), credstore.RevokedKey(email)}, engine.SessionKeys(email)...)
	if err := p.gate.kv.DeleteAll(ctx, keys...); err != nil {
		return fmt.Errorf("admin: reset trial %s: %w", email, err)
	}
	p.logAudit(ctx, email, audit.ActionResetTrial, audit.ResourceIdentity)
	return nil
}

// RevokeUser permanently revokes email. The current identity is logged out if it matches.
func (p *Panel) RevokeUser(ctx context.Context, email string) error {
	email, err := p.known(email)
	if err != nil {
		return err
	}
	if err := p.gate.accounts.RevokeUser(ctx, email); err != nil {
		return fmt.Errorf("admin: revoke %s: %w", email, err)
	}
	return nil
}

// ClearAllData wipes every persisted entry, including revocations and the current login.
func (p *Panel) ClearAllData(ctx context.Context) error {
	if err := p.gate.accounts.ClearAllData(ctx); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	return nil
}

func (p *Panel) known(email string) (string, error) {
	email = identitydomain.NormalizeEmail(email)
	if _, ok := p.gate.directory.Lookup(email); !ok {
		return "", fmt.Errorf("admin: %w: %s", ErrUnknownIdentity, strings.TrimSpace(email))
	}
	return email, nil
}

func (p *Panel) logAudit(ctx context.Context, email, action, resource string) {
	if p.gate.audit == nil {
		return
	}
	p.gate.audit.LogEvent(ctx, email, action, resource, "admin")
}
