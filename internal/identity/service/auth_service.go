package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"voice-trial-agent/internal/audit"
	"voice-trial-agent/internal/identity/credstore"
	"voice-trial-agent/internal/identity/domain"
)

// InvalidLoginMessage is shown for every rejected login. Revoked identities get the same
// text so the client does not reveal revocation status.
const InvalidLoginMessage = "Invalid email or password"

const userKey = "user"

// CredentialStore is the minimal credential store needed by the auth service.
type CredentialStore interface {
	Authenticate(ctx context.Context, email, password string) (*domain.Identity, error)
	Revoke(ctx context.Context, email string) error
}

// SessionEnder destroys an identity's trial session.
type SessionEnder interface {
	EndSession(ctx context.Context, email string) error
}

// KV is the namespaced store holding the current identity.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// AuthService owns the logged-in identity of this client.
type AuthService struct {
	creds    CredentialStore
	sessions SessionEnder
	kv       KV
	audit    audit.AuditLogger

	mu         sync.Mutex
	clearHooks []func()
}

// NewAuthService returns an AuthService. auditLogger may be nil.
func NewAuthService(creds CredentialStore, sessions SessionEnder, kv KV, auditLogger audit.AuditLogger) *AuthService {
	return &AuthService{creds: creds, sessions: sessions, kv: kv, audit: auditLogger}
}

// OnClearAll registers fn to run after ClearAllData wipes the store.
func (s *AuthService) OnClearAll(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearHooks = append(s.clearHooks, fn)
}

// Login authenticates and makes the identity current. Any previous session counters for
// the identity are cleared, so a fresh login starts a fresh trial window.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	email = domain.NormalizeEmail(email)
	id, err := s.creds.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, credstore.ErrInvalidCredentials) || errors.Is(err, credstore.ErrRevoked) {
			s.logAudit(ctx, email, audit.ActionLoginFailure, err.Error())
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(id.Profile())
	if err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, userKey, string(b)); err != nil {
		return nil, fmt.Errorf("auth: persist user: %w", err)
	}
	if err := s.sessions.EndSession(ctx, id.Email); err != nil {
		return nil, fmt.Errorf("auth: clear previous session: %w", err)
	}
	s.logAudit(ctx, id.Email, audit.ActionLoginSuccess, "")
	return id, nil
}

// Logout clears the current identity and its session. Revocation flags are kept.
// Logging out with nobody logged in is a no-op.
func (s *AuthService) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutLocked(ctx)
}

func (s *AuthService) logoutLocked(ctx context.Context) error {
	p, ok, err := s.currentLocked(ctx)
	if err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, userKey); err != nil {
		return fmt.Errorf("auth: clear user: %w", err)
	}
	if !ok {
		return nil
	}
	if err := s.sessions.EndSession(ctx, p.Email); err != nil {
		return fmt.Errorf("auth: end session: %w", err)
	}
	s.logAudit(ctx, p.Email, audit.ActionLogout, "")
	return nil
}

// Current returns the logged-in identity's profile.
func (s *AuthService) Current(ctx context.Context) (domain.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(ctx)
}

func (s *AuthService) currentLocked(ctx context.Context) (domain.Profile, bool, error) {
	v, ok, err := s.kv.Get(ctx, userKey)
	if err != nil || !ok {
		return domain.Profile{}, false, err
	}
	var p domain.Profile
	if err := json.Unmarshal([]byte(v), &p); err != nil || p.Email == "" {
		log.Printf("auth: discarding unreadable current user entry: %v", err)
		return domain.Profile{}, false, nil
	}
	return p, true, nil
}

// IsAuthenticated reports whether an identity is logged in. Store failures read as false.
func (s *AuthService) IsAuthenticated(ctx context.Context) bool {
	_, ok, err := s.Current(ctx)
	if err != nil {
		log.Printf("auth: read current user: %v", err)
		return false
	}
	return ok
}

// RevokeUser permanently revokes email. If email is the current identity it is logged out.
func (s *AuthService) RevokeUser(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if err := s.creds.Revoke(ctx, email); err != nil {
		return err
	}
	s.logAudit(ctx, email, audit.ActionRevoke, "")

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok, err := s.currentLocked(ctx)
	if err != nil {
		return err
	}
	if ok && p.Email == email {
		return s.logoutLocked(ctx)
	}
	return nil
}

// ClearAllData wipes every namespaced entry, revocations included, then runs the
// registered clear hooks.
func (s *AuthService) ClearAllData(ctx context.Context) error {
	s.mu.Lock()
	if err := s.kv.Clear(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("auth: clear all: %w", err)
	}
	hooks := append([]func(){}, s.clearHooks...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	if s.audit != nil {
		s.audit.LogEvent(ctx, "", audit.ActionClearAll, audit.ResourceStore, "")
	}
	return nil
}

// UserMessage maps a Login error to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, credstore.ErrInvalidCredentials), errors.Is(err, credstore.ErrRevoked):
		return InvalidLoginMessage
	default:
		return "Login failed. Please try again."
	}
}

func (s *AuthService) logAudit(ctx context.Context, email, action, metadata string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, email, action, audit.ResourceIdentity, metadata)
}
