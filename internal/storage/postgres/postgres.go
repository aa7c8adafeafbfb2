// Package postgres records frames into a Postgres database through the
// shared GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/hephaestus-engine/hephaestus/internal/config"
	"github.com/hephaestus-engine/hephaestus/internal/database"
	gormstorage "github.com/hephaestus-engine/hephaestus/internal/storage/gorm"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// Backend connects on Init and then delegates to the GORM backend.
type Backend struct {
	cfg    config.StorageConfig
	dbCfg  config.DBConfig
	logger *slog.Logger
	db     *database.Manager
	inner  *gormstorage.Backend
}

// New creates a Postgres backend. No connection is made until Init.
func New(cfg config.StorageConfig, dbCfg config.DBConfig, logger *slog.Logger, dbLog zerolog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:    cfg,
		dbCfg:  dbCfg,
		logger: logger,
		db:     database.NewManager(dbLog),
	}
}

// Init connects, migrates and starts the writer.
func (b *Backend) Init() error {
	if err := b.db.ConnectPostgres(b.dbCfg); err != nil {
		return err
	}
	b.inner = gormstorage.New(gormstorage.Dependencies{
		DB:            b.db.DB,
		Logger:        b.logger,
		FlushInterval: b.cfg.FlushInterval,
	})
	if err := b.inner.Init(); err != nil {
		b.db.Close()
		b.inner = nil
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	return nil
}

// Close flushes pending frames and closes the connection.
func (b *Backend) Close() error {
	if b.inner == nil {
		return nil
	}
	if err := b.inner.Close(); err != nil {
		return err
	}
	return b.db.Close()
}

// StartSession inserts the session row.
func (b *Backend) StartSession(s *core.Session) error {
	if b.inner == nil {
		return fmt.Errorf("postgres backend not initialized")
	}
	return b.inner.StartSession(s)
}

// RecordFrame queues f for the writer.
func (b *Backend) RecordFrame(f *core.Frame) error {
	if b.inner == nil {
		return fmt.Errorf("postgres backend not initialized")
	}
	return b.inner.RecordFrame(f)
}
