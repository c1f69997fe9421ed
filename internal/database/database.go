// Package database provides SQLite storage for podcasts, episodes, playback
// and download state, plus the binary object store for downloaded audio.
package database

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// ErrAlreadyQueued is returned when an episode already has a live queue entry
var ErrAlreadyQueued = errors.New("episode already queued")

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and applies pending migrations
func New(dbPath string) (*DB, error) {
	// Add connection parameters to help with concurrent access
	connString := dbPath
	if dbPath != ":memory:" {
		connString = dbPath + "?_busy_timeout=30000&_journal_mode=WAL&_synchronous=NORMAL"
	}

	conn, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't handle concurrent writes well
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrations are applied in order and must stay additive: adding a migration
// must leave data written by earlier versions queryable.
var migrations = []string{
	// v1: initial schema
	`
	CREATE TABLE IF NOT EXISTS podcasts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		feed_url TEXT NOT NULL UNIQUE,
		author TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		categories TEXT NOT NULL DEFAULT '[]',
		subscribed_at DATETIME NOT NULL,
		last_updated DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		podcast_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		audio_url TEXT NOT NULL,
		duration INTEGER NOT NULL DEFAULT 0,
		published_at DATETIME NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		episode_number INTEGER NOT NULL DEFAULT 0,
		season_number INTEGER NOT NULL DEFAULT 0,
		is_downloaded BOOLEAN NOT NULL DEFAULT FALSE,
		downloaded_path TEXT NOT NULL DEFAULT '',
		downloaded_at DATETIME,
		file_size INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (podcast_id) REFERENCES podcasts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_episodes_podcast_id ON episodes(podcast_id);
	CREATE INDEX IF NOT EXISTS idx_episodes_published_at ON episodes(published_at DESC);

	CREATE TABLE IF NOT EXISTS playback_progress (
		id TEXT PRIMARY KEY,
		episode_id TEXT NOT NULL,
		podcast_id TEXT NOT NULL,
		position REAL NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		last_played_at DATETIME NOT NULL,
		is_completed BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_playback_podcast_id ON playback_progress(podcast_id);

	CREATE TABLE IF NOT EXISTS download_progress (
		episode_id TEXT PRIMARY KEY,
		progress INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS download_queue (
		id TEXT PRIMARY KEY,
		episode_id TEXT NOT NULL UNIQUE,
		podcast_id TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 1,
		added_at DATETIME NOT NULL,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	`,
	// v2: indexes for download-state queries
	`
	CREATE INDEX IF NOT EXISTS idx_episodes_is_downloaded ON episodes(is_downloaded);
	CREATE INDEX IF NOT EXISTS idx_queue_priority ON download_queue(priority DESC, added_at ASC);
	`,
}

// migrate brings the schema up to the latest version
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	version, err := db.schemaVersion()
	if err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to reset schema version: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
	}

	return nil
}

// schemaVersion returns the currently applied schema version, 0 when fresh
func (db *DB) schemaVersion() (int, error) {
	var version int
	err := db.conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// SchemaVersion exposes the applied schema version
func (db *DB) SchemaVersion() (int, error) {
	return db.schemaVersion()
}
