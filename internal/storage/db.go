// Package storage persists the little that survives a restart: the last
// known profile of every participant ever seen in a call. Call state
// itself is deliberately ephemeral.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps the peer's SQLite database.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the database under the peer directory.
func Open(peerDir string) (*DB, error) {
	if err := os.MkdirAll(peerDir, 0755); err != nil {
		return nil, fmt.Errorf("create peer dir: %w", err)
	}
	dbPath := filepath.Join(peerDir, "voxmesh.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			peer_id    TEXT PRIMARY KEY,
			label      TEXT NOT NULL DEFAULT '',
			avatar_ref TEXT NOT NULL DEFAULT '',
			last_room  TEXT NOT NULL DEFAULT '',
			last_seen  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create profiles table: %w", err)
	}

	return &DB{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Close closes the database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}
