// Package sqlite is the SQLite backend for the persistence port (§1 "the
// core is specified against an abstract persistence port ... not against any
// concrete storage"). A single-writer connection pool in WAL mode, with
// PRAGMA user_version driving schema migrations.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/elviscgn/UkweliDB/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - initial records/signatures schema.
const currentSchemaVersion = 1

// Store is the persistence port's SQLite backend.
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance within the WAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce the signatures->records reference
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path, applying pragmas and
// migrations. Idempotent: safe to call multiple times against the same file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Flush forces the WAL back into the main database file, so that a crash
// immediately after a successful Append cannot lose it (§5 "a successful
// append is durable ... before the returned Record is observable").
func (s *Store) Flush() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Append inserts r and its signatures in one transaction. Re-appending an id
// that already exists is a programmer error in the chain engine, not a
// condition this layer papers over, so it is left to fail on the primary key
// constraint rather than silently ignored.
func (s *Store) Append(r record.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("append: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO records (id, timestamp, previous_hash, entity_id, workflow_name, action_name, payload, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Timestamp,
		r.PreviousHash.Bytes(),
		r.EntityID,
		r.Workflow.WorkflowName,
		r.Workflow.ActionName,
		r.Payload,
		r.Hash.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("append: insert record: %w", err)
	}

	for i, sig := range r.Signatures {
		_, err = tx.Exec(`
			INSERT INTO signatures (record_id, seq, signer, signature)
			VALUES (?, ?, ?, ?)
		`, r.ID, i, sig.Signer, sig.Bytes)
		if err != nil {
			return fmt.Errorf("append: insert signature: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append: commit: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	// No migrations beyond the initial schema exist yet; schema.sql's
	// CREATE TABLE IF NOT EXISTS statements cover version 0 -> 1 for fresh
	// databases. Future migrations slot in here keyed off version.

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value. Used only
// by tests.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
