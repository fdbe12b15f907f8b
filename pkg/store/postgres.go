package store

import (
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS blends (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		documents INTEGER NOT NULL DEFAULT 0,
		artifact_bytes BIGINT NOT NULL DEFAULT 0,
		artifact_digest TEXT,
		error_message TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_blends_started_at ON blends(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_blends_finished_at ON blends(finished_at)`,
	`CREATE TABLE IF NOT EXISTS blend_documents (
		blend_id TEXT NOT NULL REFERENCES blends(id) ON DELETE CASCADE,
		ordinal INTEGER NOT NULL,
		name TEXT NOT NULL,
		digest TEXT NOT NULL,
		size BIGINT NOT NULL,
		PRIMARY KEY (blend_id, ordinal)
	)`,
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(log logrus.FieldLogger, dsn string) Store {
	return &sqlStore{
		log:        log.WithField("component", "store"),
		driver:     "postgres",
		dsn:        dsn,
		migrations: postgresMigrations,
		numbered:   true,
	}
}
