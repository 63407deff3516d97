// Package sqlite implements the local durable cache: the catalog cache
// table, the counted-list snapshot store and the per-user settings entry.
// One file, pure-Go driver, disposable contents: everything here is a
// projection rebuilt from the remote store.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DB wraps the sqlite handle shared by the three local stores.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the local cache database and runs the
// schema migration.
func Open(path string) (*DB, error) {
	if path == "" {
		path = "recuento.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite allows one writer; a single connection avoids
	// SQLITE_BUSY under concurrent flushes.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{DB: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS catalog_cache (
			user_id         TEXT NOT NULL,
			barcode         TEXT NOT NULL,
			description     TEXT NOT NULL,
			provider        TEXT NOT NULL,
			reference_stock INTEGER NOT NULL DEFAULT 0,
			expiration      TEXT,
			PRIMARY KEY (user_id, barcode)
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			key        TEXT PRIMARY KEY,
			payload    BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			user_id              TEXT PRIMARY KEY,
			current_warehouse_id TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// builder returns a squirrel builder with sqlite placeholders.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}
