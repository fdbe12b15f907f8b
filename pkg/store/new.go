package store

import (
	"fmt"

	"github.com/bitmuster/resultblend/pkg/config"
	"github.com/sirupsen/logrus"
)

// New creates the store selected by the database configuration.
func New(log logrus.FieldLogger, cfg *config.Config) (Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		return NewMemoryStore(log), nil
	case "sqlite":
		return NewSQLiteStore(log, cfg.Database.SQLite.Path), nil
	case "postgres":
		return NewPostgresStore(log, cfg.GetDSN()), nil
	case "mysql":
		return NewMySQLStore(log, cfg.GetDSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}
