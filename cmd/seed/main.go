// seed writes a development identities file with bcrypt-hashed passwords.
// Idempotent: an existing IDENTITIES_FILE is left untouched unless -force is given.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"

	"voice-trial-agent/internal/config"
	"voice-trial-agent/internal/identity/credstore"
	"voice-trial-agent/internal/identity/domain"
	"voice-trial-agent/internal/security"
)

const devPassword = "password123"

var devIdentities = []struct {
	email, name string
}{
	{"dev@example.com", "Dev User"},
	{"member@example.com", "Trial Member"},
}

func main() {
	force := flag.Bool("force", false, "overwrite an existing identities file")
	password := flag.String("password", devPassword, "password for every seeded identity")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("seed: refusing to write development identities with APP_ENV=production")
	}

	path := cfg.IdentitiesFile
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Printf("Identities file %s already exists; skipping (use -force to overwrite).\n", path)
		return
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("seed: stat %s: %v", path, err)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	identities := make([]*domain.Identity, 0, len(devIdentities))
	for _, d := range devIdentities {
		hash, err := hasher.Hash([]byte(*password))
		if err != nil {
			log.Fatalf("seed: hash password: %v", err)
		}
		identities = append(identities, &domain.Identity{Email: d.email, DisplayName: d.name, PasswordHash: hash})
	}

	data, err := credstore.Encode(identities)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		log.Fatalf("seed: write %s: %v", path, err)
	}
	fmt.Printf("Seed complete. Wrote %d identities to %s (password %q).\n", len(identities), path, *password)
}
