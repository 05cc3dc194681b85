// Package credstore verifies email/password pairs against the static identity table and
// tracks which identities have been permanently revoked.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"voice-trial-agent/internal/identity/domain"
	"voice-trial-agent/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRevoked            = errors.New("identity revoked")
)

const revokedPrefix = "revoked_"

// KV is the slice of the namespaced key-value store the credential store needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// RevokedKey returns the store key holding the revocation flag for email.
func RevokedKey(email string) string {
	return revokedPrefix + domain.NormalizeEmail(email)
}

// Store is the credential store. The identity table is read-only after construction;
// revocation flags live in the durable store so they survive restarts.
type Store struct {
	identities map[string]*domain.Identity
	kv         KV
	hasher     *security.Hasher

	mu sync.Mutex // serializes revocation writes
}

// New returns a Store over identities. Later duplicates of an email replace earlier ones.
func New(identities []*domain.Identity, kv KV, hasher *security.Hasher) *Store {
	m := make(map[string]*domain.Identity, len(identities))
	for _, id := range identities {
		if id == nil {
			continue
		}
		cp := *id
		cp.Email = domain.NormalizeEmail(cp.Email)
		m[cp.Email] = &cp
	}
	return &Store{identities: m, kv: kv, hasher: hasher}
}

// Authenticate returns the identity matching email and password. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials; a matching but revoked identity yields ErrRevoked.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*domain.Identity, error) {
	email = domain.NormalizeEmail(email)
	id, ok := s.identities[email]
	if !ok || email == "" || password == "" {
		s.hasher.CompareDummy([]byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(id.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	revoked, err := s.IsRevoked(ctx, email)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}
	cp := *id
	return &cp, nil
}

// Revoke marks email as revoked. Idempotent, and applies to emails outside the table too.
func (s *Store) Revoke(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, RevokedKey(email), "true"); err != nil {
		return fmt.Errorf("revoke %s: %w", email, err)
	}
	return nil
}

// ResetRevocation clears the revocation flag for email.
func (s *Store) ResetRevocation(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, RevokedKey(email)); err != nil {
		return fmt.Errorf("reset revocation %s: %w", email, err)
	}
	return nil
}

// IsRevoked reports whether email carries the revocation flag.
func (s *Store) IsRevoked(ctx context.Context, email string) (bool, error) {
	v, ok, err := s.kv.Get(ctx, RevokedKey(email))
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

// Lookup returns the identity for email without checking a password.
func (s *Store) Lookup(email string) (*domain.Identity, bool) {
	id, ok := s.identities[domain.NormalizeEmail(email)]
	if !ok {
		return nil, false
	}
	cp := *id
	return &cp, true
}

// Emails returns every identity email in sorted order.
func (s *Store) Emails() []string {
	out := make([]string, 0, len(s.identities))
	for email := range s.identities {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of identities in the table.
func (s *Store) Len() int { return len(s.identities) }
