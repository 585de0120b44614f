// SQLite-backed snapshot storage.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	namespace  TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// SQLiteStore persists one snapshot per namespace in a SQLite file.
// Multiple caches may share the same file under distinct namespaces.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
}

// OpenSQLite opens (creating if needed) the database at path and
// prepares the snapshot table.
func OpenSQLite(path, namespace string) (*SQLiteStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// The store is written by one debounced flusher; a single
	// connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, namespace: namespace}, nil
}

// Load returns the namespace payload, or nil when none was saved yet.
func (s *SQLiteStore) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE namespace = ?`, s.namespace,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %q: %w", s.namespace, err)
	}
	return payload, nil
}

// Save upserts the namespace payload.
func (s *SQLiteStore) Save(ctx context.Context, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (namespace, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		s.namespace, payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %q: %w", s.namespace, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
