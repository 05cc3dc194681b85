package credstore

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"voice-trial-agent/internal/identity/domain"
	"voice-trial-agent/internal/security"
)

// identitiesFile is the on-disk layout of IDENTITIES_FILE.
type identitiesFile struct {
	Identities []identityEntry `yaml:"identities"`
}

type identityEntry struct {
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash,omitempty"`
	Password     string `yaml:"password,omitempty"`
}

// LoadFile reads and parses the identities file at path.
func LoadFile(path string, hasher *security.Hasher, production bool) ([]*domain.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credstore: read identities: %w", err)
	}
	return Parse(data, hasher, production)
}

// Parse decodes identities YAML. Entries may give a bcrypt password_hash or a plaintext
// password, which is hashed here. Plaintext passwords are rejected when production is set.
func Parse(data []byte, hasher *security.Hasher, production bool) ([]*domain.Identity, error) {
	var f identitiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credstore: parse identities: %w", err)
	}
	if len(f.Identities) == 0 {
		return nil, errors.New("credstore: identities file lists no identities")
	}
	seen := make(map[string]bool, len(f.Identities))
	out := make([]*domain.Identity, 0, len(f.Identities))
	for i, e := range f.Identities {
		email := domain.NormalizeEmail(e.Email)
		if email == "" {
			return nil, fmt.Errorf("credstore: identity %d: email is required", i)
		}
		if seen[email] {
			return nil, fmt.Errorf("credstore: identity %s listed twice", email)
		}
		seen[email] = true

		hash := e.PasswordHash
		switch {
		case hash != "":
			if !security.IsHash(hash) {
				return nil, fmt.Errorf("credstore: identity %s: password_hash is not a bcrypt hash", email)
			}
		case e.Password != "":
			if production {
				return nil, fmt.Errorf("credstore: identity %s: plaintext password not allowed in production", email)
			}
			h, err := hasher.Hash([]byte(e.Password))
			if err != nil {
				return nil, fmt.Errorf("credstore: identity %s: hash password: %w", email, err)
			}
			hash = h
		default:
			return nil, fmt.Errorf("credstore: identity %s: password or password_hash is required", email)
		}

		name := e.Name
		if name == "" {
			name = email
		}
		out = append(out, &domain.Identity{Email: email, DisplayName: name, PasswordHash: hash})
	}
	return out, nil
}

// Encode renders identities as an identities file. Only hashes are written, so the output is
// accepted in production.
func Encode(identities []*domain.Identity) ([]byte, error) {
	f := identitiesFile{Identities: make([]identityEntry, 0, len(identities))}
	for _, id := range identities {
		if !security.IsHash(id.PasswordHash) {
			return nil, fmt.Errorf("credstore: identity %s: password hash is required", id.Email)
		}
		f.Identities = append(f.Identities, identityEntry{
			Email:        domain.NormalizeEmail(id.Email),
			Name:         id.DisplayName,
			PasswordHash: id.PasswordHash,
		})
	}
	return yaml.Marshal(&f)
}
