package credstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voice-trial-agent/internal/identity/domain"
	"voice-trial-agent/internal/security"
)

func TestParse_Errors(t *testing.T) {
	hasher := security.NewHasher(4)
	testCases := []struct {
		name    string
		yaml    string
		prod    bool
		wantErr string
	}{
		{"empty", "identities: []", false, "no identities"},
		{"bad yaml", "identities: [", false, "parse identities"},
		{"missing email", "identities:\n  - password: x", false, "email is required"},
		{"missing password", "identities:\n  - email: a@example.com", false, "password or password_hash"},
		{"duplicate", "identities:\n  - email: a@example.com\n    password: x\n  - email: A@example.com\n    password: y", false, "listed twice"},
		{"bad hash", "identities:\n  - email: a@example.com\n    password_hash: nothash", false, "not a bcrypt hash"},
		{"plaintext in production", "identities:\n  - email: a@example.com\n    password: x", true, "plaintext password not allowed"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml), hasher, tc.prod)
			if err == nil {
				t.Fatal("Parse should fail")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestParse_HashAcceptedInProduction(t *testing.T) {
	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte("secret"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	ids, err := Parse([]byte("identities:\n  - email: a@example.com\n    password_hash: '"+hash+"'"), hasher, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ids) != 1 || ids[0].PasswordHash != hash {
		t.Fatalf("unexpected identities: %+v", ids)
	}
	if ids[0].DisplayName != "a@example.com" {
		t.Errorf("DisplayName should default to email, got %q", ids[0].DisplayName)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identities.yaml")
	if err := os.WriteFile(path, []byte("identities:\n  - email: a@example.com\n    name: A\n    password: pw\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ids, err := LoadFile(path, security.NewHasher(4), false)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(ids) != 1 || ids[0].DisplayName != "A" {
		t.Errorf("unexpected identities: %+v", ids)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), security.NewHasher(4), false); err == nil {
		t.Error("LoadFile on missing path should fail")
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte("pw"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	data, err := Encode([]*domain.Identity{{Email: " Dev@Example.com ", DisplayName: "Dev", PasswordHash: hash}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(data), "password:") {
		t.Errorf("encoded file should not carry plaintext passwords:\n%s", data)
	}

	got, err := Parse(data, hasher, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 1 || got[0].Email != "dev@example.com" || got[0].DisplayName != "Dev" || got[0].PasswordHash != hash {
		t.Errorf("round trip = %+v", got)
	}
}

func TestEncode_RequiresHash(t *testing.T) {
	if _, err := Encode([]*domain.Identity{{Email: "a@example.com", PasswordHash: "plain"}}); err == nil {
		t.Fatal("Encode should reject a non-bcrypt hash")
	}
}
