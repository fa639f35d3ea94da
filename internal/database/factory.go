package database

import (
	"fmt"
	"os"
	"path/filepath"

	"claims-go/internal/config"
	"claims-go/internal/database/migrations"
)

// sqliteFileName is the database file inside StorageConfig.DataDir.
const sqliteFileName = "claims.db"

// NewBackendFromConfig creates a RelationalBackend based on the storage config type.
func NewBackendFromConfig(cfg config.StorageConfig, opts Options) (*RelationalBackend, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite storage")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewRelationalBackend(migrations.SQLite, filepath.Join(cfg.DataDir, sqliteFileName), opts)
	case "memory":
		return NewRelationalBackend(migrations.SQLite, ":memory:", opts)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for postgres storage")
		}
		return NewRelationalBackend(migrations.Postgres, os.ExpandEnv(cfg.DSN), opts)
	default:
		return nil, fmt.Errorf("unknown relational storage type: %s", cfg.Type)
	}
}
