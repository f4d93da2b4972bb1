package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - kv table
const currentSchemaVersion = 1

// SQLite is an Adapter backed by a single SQLite database file.
type SQLite struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

var (
	_ Adapter = (*SQLite)(nil)
	_ Batcher = (*SQLite)(nil)
)

// NewSQLite returns an adapter for the database at path. Nothing is opened
// until Connect.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Connect opens the database, applies pragmas and creates the schema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - FULL synchronous mode so Set is durable when it returns
//   - 5-second busy timeout for lock contention
//
// Connect is idempotent.
func (s *SQLite) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	// Open database (creates file if doesn't exist)
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return &ConnectError{Path: s.path, Err: err}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &ConnectError{Path: s.path, Err: err}
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return &ConnectError{Path: s.path, Err: err}
	}

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return &ConnectError{Path: s.path, Err: err}
	}

	s.db = db
	return nil
}

// Close closes the database connection. Get and Set fail with
// ErrNotConnected afterwards until the next Connect.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Get returns the value stored under key.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, false, ErrNotConnected
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &ReadError{Key: key, Err: err}
	}
	return value, true, nil
}

// Set stores value under key in its own transaction.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	return s.SetBatch(ctx, []Entry{{Key: key, Value: value}})
}

// SetBatch stores every entry in one transaction.
func (s *SQLite) SetBatch(ctx context.Context, entries []Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ErrNotConnected
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &WriteError{Keys: entryKeys(entries), Err: err}
	}
	defer tx.Rollback() // No-op if committed

	for _, e := range entries {
		// ON CONFLICT keeps a per-key revision so overwrites are observable
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, revision, updated_at)
			VALUES (?, ?, 1, CAST(strftime('%s', 'now') AS INTEGER) * 1000)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				revision = kv.revision + 1,
				updated_at = excluded.updated_at
		`, e.Key, nonNil(e.Value))
		if err != nil {
			return &WriteError{Keys: entryKeys(entries), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &WriteError{Keys: entryKeys(entries), Err: err}
	}
	return nil
}

// Revision returns how many times key has been written, or 0 if never.
func (s *SQLite) Revision(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return 0, ErrNotConnected
	}

	var rev int64
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM kv WHERE key = ?`, key).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, &ReadError{Key: key, Err: err}
	}
	return rev, nil
}

// nonNil maps a nil slice to an empty one; value is NOT NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. A database written by a newer version is rejected.
func applySchema(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ErrNotConnected
	}
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
