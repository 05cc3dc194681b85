package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"time"
	"unicode/utf8"

	"voice-trial-agent/internal/db"
)

// SQLStore implements Store over the kv_entries table (see internal/db/migrations).
// It works with both Postgres (pgx) and SQLite (modernc); queries are rebound per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect db.Dialect
	nowF    func() time.Time
}

// NewSQLStore returns a store backed by conn. The schema must already be migrated.
func NewSQLStore(conn *sql.DB, dialect db.Dialect) *SQLStore {
	return &SQLStore{db: conn, dialect: dialect, nowF: time.Now}
}

const (
	getQuery    = `SELECT value FROM kv_entries WHERE key = ?`
	upsertQuery = `INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteQuery = `DELETE FROM kv_entries WHERE key = ?`
	keysQuery   = `SELECT key FROM kv_entries WHERE substr(key, 1, ?) = ? ORDER BY key`
)

// Get returns the value for key, or ok false when no row exists.
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	var v string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(getQuery), key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// Set upserts key.
func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(upsertQuery), key, value, s.nowF().UnixMilli())
	return err
}

// Delete removes key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(deleteQuery), key)
	return err
}

// Keys returns the keys starting with prefix. The comparison uses substr rather than LIKE
// so that _ and % in the namespace are matched literally.
func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(keysQuery), utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
