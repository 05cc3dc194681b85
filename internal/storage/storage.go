// Package storage opens the configured durable backend and hands out the key-value store and
// audit repository built on it.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	auditrepo "voice-trial-agent/internal/audit/repository"
	"voice-trial-agent/internal/config"
	"voice-trial-agent/internal/db"
	"voice-trial-agent/internal/db/migrate"
	"voice-trial-agent/internal/kvstore"
)

// Storage bundles the stores opened for one process.
type Storage struct {
	// KV is the namespaced key-value store (every key carries the configured prefix).
	KV *kvstore.Namespaced
	// Audit persists audit log entries next to KV.
	Audit auditrepo.Repository

	conn *sql.DB
}

// Open opens cfg.StoreBackend, applies embedded migrations for SQL backends, and
// namespaces the key-value store with cfg.StorePrefix. Caller must call Close.
func Open(ctx context.Context, cfg *config.Config) (*Storage, error) {
	var (
		conn    *sql.DB
		dialect db.Dialect
		err     error
	)
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		log.Printf("storage: using in-memory store; data is lost on exit")
		return &Storage{
			KV:    kvstore.NewNamespaced(kvstore.NewMemoryStore(), cfg.StorePrefix),
			Audit: auditrepo.NewMemoryRepository(),
		}, nil
	case config.StoreBackendPostgres:
		dialect = db.DialectPostgres
		conn, err = db.Open(cfg.DatabaseURL)
	case config.StoreBackendSQLite:
		dialect = db.DialectSQLite
		conn, err = db.OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dialect, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", dialect, err)
	}
	if err := migrate.Apply(conn, dialect); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("storage: migrate %s: %w", dialect, err)
	}
	return &Storage{
		KV:    kvstore.NewNamespaced(kvstore.NewSQLStore(conn, dialect), cfg.StorePrefix),
		Audit: auditrepo.NewSQLRepository(conn, dialect),
		conn:  conn,
	}, nil
}

// Ping reports whether the backing store is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.KV.Ping(ctx)
}

// Close releases the database connection, if any.
func (s *Storage) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
