package store

import (
	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS blends (
		id VARCHAR(36) PRIMARY KEY,
		status VARCHAR(32) NOT NULL,
		documents INT NOT NULL DEFAULT 0,
		artifact_bytes BIGINT NOT NULL DEFAULT 0,
		artifact_digest VARCHAR(64),
		error_message TEXT,
		started_at DATETIME(6) NOT NULL,
		finished_at DATETIME(6) NOT NULL,
		INDEX idx_blends_started_at (started_at),
		INDEX idx_blends_finished_at (finished_at)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS blend_documents (
		blend_id VARCHAR(36) NOT NULL,
		ordinal INT NOT NULL,
		name TEXT NOT NULL,
		digest VARCHAR(64) NOT NULL,
		size BIGINT NOT NULL,
		PRIMARY KEY (blend_id, ordinal),
		FOREIGN KEY (blend_id) REFERENCES blends(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}

// NewMySQLStore creates a new MySQL store. The DSN must set parseTime=true.
func NewMySQLStore(log logrus.FieldLogger, dsn string) Store {
	return &sqlStore{
		log:        log.WithField("component", "store"),
		driver:     "mysql",
		dsn:        dsn,
		migrations: mysqlMigrations,
	}
}
