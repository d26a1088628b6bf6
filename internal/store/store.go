// Package store provides the daemon's durable state on SQLite: runtime
// settings, the daemon status row, the append-only event log, and the
// pages/blocks tables the agent tasks read and write.
//
// The database is opened once at process start and shared by reference.
// It is configured for a single writer (MaxOpenConns=1) with WAL journaling,
// and every mutation goes through a parameterized statement.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store wraps the SQLite handle shared by all daemon components.
type Store struct {
	db     *sql.DB
	dbPath string
	logger *zap.Logger
}

// Open initializes the SQLite database at the given path, creating the
// schema if needed.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logger.Debug("failed to enable sqlite foreign_keys", zap.Error(err))
	}

	s := &Store{db: db, dbPath: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("store opened", zap.String("path", path))
	return s, nil
}

// initialize creates all tables if they do not exist.
func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS daemon_status (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			pid          INTEGER NOT NULL,
			state        TEXT NOT NULL,
			current_task TEXT,
			started_at   DATETIME,
			updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS event_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			task_name  TEXT,
			payload    TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS pages (
			id          TEXT PRIMARY KEY,
			vault_id    TEXT NOT NULL,
			title       TEXT NOT NULL,
			is_journal  INTEGER NOT NULL DEFAULT 0,
			is_favorite INTEGER NOT NULL DEFAULT 0,
			is_pinned   INTEGER NOT NULL DEFAULT 0,
			tags        TEXT NOT NULL DEFAULT '[]',
			properties  TEXT NOT NULL DEFAULT '{}',
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS blocks (
			id         TEXT PRIMARY KEY,
			page_id    TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
			block_type TEXT NOT NULL DEFAULT 'paragraph',
			content    TEXT NOT NULL DEFAULT '',
			indent     INTEGER NOT NULL DEFAULT 0,
			sort_key   TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_log_created ON event_log(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_vault ON pages(vault_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_page ON blocks(page_id, sort_key)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying handle for components that need transactions.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
