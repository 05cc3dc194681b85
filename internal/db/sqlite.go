package db

import (
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"
)

// MemorySQLite is the path that opens a private in-memory SQLite database.
const MemorySQLite = ":memory:"

// OpenSQLite opens (or creates) the SQLite database file at path. The pool is limited to
// one connection: SQLite serializes writers anyway, and an in-memory database only exists
// on the connection that created it.
func OpenSQLite(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	dsn := path
	if path != MemorySQLite {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
