package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations/{postgres,sqlite}.
// Used by the migrate runner (cmd/migrate) and by the client when it bootstraps its store.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS

// MigrationDir returns the embedded directory holding migrations for dialect.
func MigrationDir(d Dialect) string {
	return "migrations/" + string(d)
}
