package store

import (
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS blends (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		documents INTEGER NOT NULL DEFAULT 0,
		artifact_bytes INTEGER NOT NULL DEFAULT 0,
		artifact_digest TEXT,
		error_message TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_blends_started_at ON blends(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_blends_finished_at ON blends(finished_at)`,
	`CREATE TABLE IF NOT EXISTS blend_documents (
		blend_id TEXT NOT NULL REFERENCES blends(id) ON DELETE CASCADE,
		ordinal INTEGER NOT NULL,
		name TEXT NOT NULL,
		digest TEXT NOT NULL,
		size INTEGER NOT NULL,
		PRIMARY KEY (blend_id, ordinal)
	)`,
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(log logrus.FieldLogger, path string) Store {
	return &sqlStore{
		log:        log.WithField("component", "store"),
		driver:     "sqlite3",
		dsn:        path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		migrations: sqliteMigrations,
	}
}
