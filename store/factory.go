package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/balogun-pappy/advoc/config"
)

// SqliteFileName is the database file the sqlite backend creates in the
// data directory.
const SqliteFileName = "advoc.db"

// NewFromConfig creates a Backend based on the store config.
//
// Supported backends:
//
//	"json"   - JSON array files in data_dir (default)
//	"sqlite" - SQLite database at data_dir/advoc.db
//	"redis"  - one Redis key per collection at redis_addr
//	"memory" - In-memory (ephemeral, for testing)
func NewFromConfig(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (Backend, error) {
	opts := []Option{
		WithIOTimeout(cfg.IOTimeout.Duration),
		WithLogger(log),
	}
	switch cfg.Backend {
	case "json", "":
		return NewJsonFileStore(cfg.DataDir, opts...)
	case "sqlite":
		return NewSqliteStore(filepath.Join(cfg.DataDir, SqliteFileName), opts...)
	case "redis":
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPrefix, opts...)
	case "memory":
		return NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, redis, memory)", cfg.Backend)
	}
}
