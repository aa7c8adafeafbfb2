// Package sqlitestorage records frames into an in-memory SQLite database and
// periodically dumps it to disk via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/zerolog"

	"github.com/hephaestus-engine/hephaestus/internal/config"
	"github.com/hephaestus-engine/hephaestus/internal/database"
	gormstorage "github.com/hephaestus-engine/hephaestus/internal/storage/gorm"
)

// Backend wraps the GORM backend with an in-memory SQLite database.
type Backend struct {
	*gormstorage.Backend
	db       *database.Manager
	cfg      config.SQLiteConfig
	log      *slog.Logger
	stopChan chan struct{}
	done     chan struct{}
}

// New opens the in-memory database and creates the backend.
func New(cfg config.StorageConfig, logger *slog.Logger, dbLog zerolog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := database.NewManager(dbLog)
	if err := m.ConnectSQLite(""); err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:            m.DB,
			Logger:        logger,
			FlushInterval: cfg.FlushInterval,
		}),
		db:  m,
		cfg: cfg.SQLite,
		log: logger,
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	if b.cfg.Path != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	} else {
		close(b.done)
	}
	return nil
}

// Close flushes pending frames, writes a final dump and closes the database.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.cfg.Path != "" {
		if err := b.Dump(); err != nil {
			b.db.Close()
			return err
		}
	}
	return b.db.Close()
}

// ExportedFilePath returns the dump path, empty when dumps are disabled.
func (b *Backend) ExportedFilePath() string {
	return b.cfg.Path
}

// Dump flushes queued frames and writes the database to the configured path.
func (b *Backend) Dump() error {
	if err := b.Flush(); err != nil {
		return err
	}
	return b.db.DumpToDisk(b.cfg.Path)
}

// dumpLoop periodically dumps the in-memory SQLite database to disk.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping recording to disk", "path", b.cfg.Path, "error", err)
			} else {
				b.log.Debug("Dumped recording to disk", "path", b.cfg.Path, "duration", time.Since(start))
			}
		}
	}
}
