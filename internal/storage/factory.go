package storage

import (
	"context"
	"fmt"
)

// Config selects and parameterizes a storage backend.
type Config struct {
	Backend     string `toml:"backend"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
	MongoURI    string `toml:"mongo_uri"`
	MongoDB     string `toml:"mongo_db"`
}

// New builds the configured backend: memory, sqlite, postgres, or mongo.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(cfg.SQLitePath)
	case "postgres":
		return NewPostgresStorage(ctx, cfg.PostgresDSN)
	case "mongo":
		return NewMongoStorage(cfg.MongoURI, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("invalid storage backend %q: valid options are memory, sqlite, postgres, mongo", cfg.Backend)
	}
}
