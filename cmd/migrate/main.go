// migrate applies the embedded SQL migrations for the durable store and audit log.
// The target is DATABASE_URL, or sqlite://SQLITE_PATH when STORE_BACKEND=sqlite.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"voice-trial-agent/internal/config"
	"voice-trial-agent/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	dsn := cfg.DatabaseURL
	switch cfg.StoreBackend {
	case config.StoreBackendSQLite:
		dsn = "sqlite://" + cfg.SQLitePath
	case config.StoreBackendMemory:
		fmt.Fprintln(os.Stderr, "STORE_BACKEND=memory has nothing to migrate")
		os.Exit(1)
	}

	if err := migrate.Run(dsn, *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			// Already at target version; success.
			return
		}
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
