// Package storage persists projects, reviews, and agent sessions in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  display_name TEXT NOT NULL,
  git_remote TEXT NOT NULL UNIQUE,
  main_branch TEXT NOT NULL DEFAULT 'main',
  auto_review_enabled INTEGER NOT NULL DEFAULT 1,
  review_trigger_label TEXT NOT NULL DEFAULT 'ai_codereview',
  review_model TEXT NOT NULL DEFAULT '',
  polling_enabled INTEGER NOT NULL DEFAULT 0,
  last_polled_at TEXT,
  store_path TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reviews (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  pr_number INTEGER NOT NULL,
  pr_title TEXT NOT NULL DEFAULT '',
  pr_url TEXT NOT NULL DEFAULT '',
  repository TEXT NOT NULL,
  reviewed_at TEXT NOT NULL,
  verdict TEXT NOT NULL CHECK (verdict IN ('approve', 'request_changes', 'comment')),
  comment_count INTEGER NOT NULL DEFAULT 0,
  review_dir TEXT NOT NULL,
  review_output TEXT,
  github_review_id INTEGER,
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  project_id TEXT REFERENCES projects(id) ON DELETE SET NULL,
  type TEXT NOT NULL CHECK (type IN ('init', 'review', 'push')),
  status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'completed', 'error')),
  progress TEXT,
  started_at TEXT NOT NULL DEFAULT (datetime('now')),
  completed_at TEXT
);

CREATE TABLE IF NOT EXISTS document_versions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  module_name TEXT,
  content TEXT NOT NULL,
  modified_at TEXT NOT NULL DEFAULT (datetime('now')),
  modified_by TEXT NOT NULL DEFAULT 'system',
  version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS global_settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reviews_project ON reviews(project_id);
CREATE INDEX IF NOT EXISTS idx_reviews_project_pr ON reviews(project_id, pr_number);
CREATE INDEX IF NOT EXISTS idx_reviews_reviewed_at ON reviews(reviewed_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_doc_versions_project_module ON document_versions(project_id, module_name);
`

// DB wraps the SQLite handle with domain queries.
type DB struct {
	*sql.DB
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode and a busy timeout so concurrent trigger surfaces
	// (poller tick, webhook, manual call) don't fail on lock contention.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	wrapped := &DB{db}

	// CREATE IF NOT EXISTS is idempotent
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	if err := wrapped.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return wrapped, nil
}

// migrate runs any needed migrations for existing databases.
func (db *DB) migrate() error {
	// Migration: add review_output column to reviews if missing
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('reviews') WHERE name = 'review_output'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("check review_output column: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`ALTER TABLE reviews ADD COLUMN review_output TEXT`); err != nil {
			return fmt.Errorf("add review_output column: %w", err)
		}
	}

	// Migration: add github_review_id column to reviews if missing
	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('reviews') WHERE name = 'github_review_id'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("check github_review_id column: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`ALTER TABLE reviews ADD COLUMN github_review_id INTEGER`); err != nil {
			return fmt.Errorf("add github_review_id column: %w", err)
		}
	}

	return nil
}

// timeFormat is RFC 3339 with a fixed-width fractional second, so
// stored timestamps sort lexicographically in chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// now returns the current time formatted for storage.
func now() string {
	return time.Now().UTC().Format(timeFormat)
}

// parseTime parses a stored timestamp, accepting both the RFC 3339
// format written by this package and sqlite's datetime('now') default.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", strings.TrimSuffix(s, "Z")); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// parseTimePtr is parseTime for nullable columns.
func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
