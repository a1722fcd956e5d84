// Package store owns the relational schema and the low-level SQL primitives
// the task queue is built on: row marshaling, CAS-guarded updates, and the
// unique-key insert that backs file-ownership exclusivity. It never exposes
// raw *sql.Rows to callers outside pkg/queue.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store wraps the single process-wide database connection. Per the
// concurrency contract, one connection handles all writers; they serialize
// through IMMEDIATE transactions rather than through connection pooling.
type Store struct {
	DB *sql.DB
}

// Open opens (creating if necessary) the SQLite-backed store at path and
// applies the schema. path may be ":memory:" or "" for an in-memory
// database, used by tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsnForPath(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes all writers through one SQLite
	// connection, matching the "one DB connection per process" contract;
	// concurrent callers compete for the writer lock via transactions.
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{DB: db}, nil
}

func dsnForPath(path string) string {
	if path == "" || path == ":memory:" {
		return "file::memory:?cache=shared&_pragma=busy_timeout(5000)&_txlock=immediate"
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_txlock=immediate", path)
}

// Migrate applies the embedded schema. It is idempotent: every statement is
// CREATE ... IF NOT EXISTS.
func Migrate(db *sql.DB) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err := db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// BeginImmediate starts a writer transaction. The _txlock=immediate DSN
// parameter makes every transaction opened on this connection acquire the
// write lock up front, matching the IMMEDIATE semantics the queue's
// concurrency contract requires.
func (s *Store) BeginImmediate(ctx context.Context) (*sql.Tx, error) {
	return s.DB.BeginTx(ctx, nil)
}

// Execer is satisfied by both *sql.DB and *sql.Tx, letting the row-level
// helpers in this package run either standalone or inside a caller's
// transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
