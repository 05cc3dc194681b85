// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"voice-trial-agent/internal/db"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// DialectFromURL reports which migration set applies to a database URL.
// sqlite:// URLs use the SQLite set; everything else is treated as Postgres.
func DialectFromURL(dsn string) db.Dialect {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(dsn)), "sqlite://") {
		return db.DialectSQLite
	}
	return db.DialectPostgres
}

// Run applies migrations in the given direction using the provided DSN.
// direction must be "up" or "down". Returns nil on success; ErrNoChange is swallowed.
func Run(dsn string, direction string) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	sourceDriver, err := iofs.New(db.MigrationFS, db.MigrationDir(DialectFromURL(dsn)))
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return step(m, direction)
}

// Apply migrates an already open database up to the latest version. Unlike Run it reuses
// conn, so it works for in-memory SQLite; conn stays open and owned by the caller.
func Apply(conn *sql.DB, dialect db.Dialect) error {
	if conn == nil {
		return errors.New("migrate: nil database")
	}
	var (
		driver database.Driver
		err    error
	)
	switch dialect {
	case db.DialectPostgres:
		driver, err = postgres.WithInstance(conn, &postgres.Config{})
	case db.DialectSQLite:
		driver, err = sqlite.WithInstance(conn, &sqlite.Config{})
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(db.MigrationFS, db.MigrationDir(dialect))
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	defer sourceDriver.Close()

	// m.Close would close conn through the driver, so it is not called here.
	m, err := migrate.NewWithInstance("iofs", sourceDriver, string(dialect), driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return step(m, "up")
}

func step(m *migrate.Migrate, direction string) error {
	switch direction {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	}
	return nil
}
