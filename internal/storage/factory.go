package storage

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/hephaestus-engine/hephaestus/internal/config"
	"github.com/hephaestus-engine/hephaestus/internal/storage/memory"
	"github.com/hephaestus-engine/hephaestus/internal/storage/postgres"
	sqlitestorage "github.com/hephaestus-engine/hephaestus/internal/storage/sqlite"
)

// Types accepted by New.
const (
	TypeMemory   = "memory"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeNone     = "none"
)

// New creates a storage backend based on configuration. The backend is not
// initialized.
func New(cfg config.StorageConfig, db config.DBConfig, logger *slog.Logger, dbLog zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case TypeMemory:
		return memory.New(cfg.Memory, logger), nil
	case TypeSQLite:
		return sqlitestorage.New(cfg, logger, dbLog)
	case TypePostgres:
		return postgres.New(cfg, db, logger, dbLog), nil
	case TypeNone, "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
