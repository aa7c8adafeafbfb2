// Package memory keeps recorded frames in memory and can export them as JSON
// when the session ends.
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hephaestus-engine/hephaestus/internal/config"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// ViewRecord groups a view with all frames recorded for it.
type ViewRecord struct {
	View   core.ViewID  `json:"view"`
	Model  string       `json:"model"`
	Frames []core.Frame `json:"frames"`
}

// Export is the root JSON structure written on Close.
type Export struct {
	Session    *core.Session `json:"session,omitempty"`
	ExportedAt time.Time     `json:"exportedAt"`
	Views      []ViewRecord  `json:"views"`
}

// Backend stores frames in memory.
type Backend struct {
	cfg    config.MemoryConfig
	logger *slog.Logger

	mu      sync.RWMutex
	session *core.Session
	views   map[core.ViewID]*ViewRecord
	order   []core.ViewID
	frames  int
}

// New creates a new memory backend.
func New(cfg config.MemoryConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:    cfg,
		logger: logger,
		views:  make(map[core.ViewID]*ViewRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close writes the export file when one is configured.
func (b *Backend) Close() error {
	if b.cfg.ExportPath == "" {
		return nil
	}
	if err := b.exportFile(b.cfg.ExportPath); err != nil {
		return err
	}
	b.logger.Info("Exported recording", "path", b.cfg.ExportPath, "frames", b.FrameCount())
	return nil
}

// ExportedFilePath returns the configured export path.
func (b *Backend) ExportedFilePath() string {
	return b.cfg.ExportPath
}

// StartSession begins a new recording and drops everything recorded before.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	b.session = &cp
	b.views = make(map[core.ViewID]*ViewRecord)
	b.order = nil
	b.frames = 0
	return nil
}

// RecordFrame stores a copy of f.
func (b *Backend) RecordFrame(f *core.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.views[f.View]
	if !ok {
		rec = &ViewRecord{View: f.View, Model: f.Model}
		b.views[f.View] = rec
		b.order = append(b.order, f.View)
	}
	cp := *f
	cp.Intents = append([]core.Intent(nil), f.Intents...)
	rec.Frames = append(rec.Frames, cp)
	b.frames++
	return nil
}

// Session returns the current session, or nil before StartSession.
func (b *Backend) Session() *core.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return nil
	}
	cp := *b.session
	return &cp
}

// Views lists recorded views in first-recorded order.
func (b *Backend) Views() []core.ViewID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.ViewID(nil), b.order...)
}

// Frames returns the frames recorded for view in tick order.
func (b *Backend) Frames(view core.ViewID) []core.Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.views[view]
	if !ok {
		return nil
	}
	return append([]core.Frame(nil), rec.Frames...)
}

// FrameCount returns how many frames were recorded in this session.
func (b *Backend) FrameCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frames
}

// Export writes the recording as JSON to w.
func (b *Backend) Export(w io.Writer) error {
	b.mu.RLock()
	out := Export{
		Session:    b.session,
		ExportedAt: time.Now().UTC(),
		Views:      make([]ViewRecord, 0, len(b.order)),
	}
	for _, id := range b.order {
		out.Views = append(out.Views, *b.views[id])
	}
	enc := json.NewEncoder(w)
	err := enc.Encode(out)
	b.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	return nil
}

// exportFile writes the recording to path, gzipped when path ends in .gz.
func (b *Backend) exportFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	if !strings.HasSuffix(path, ".gz") {
		if err := b.Export(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	gz := gzip.NewWriter(f)
	if err := b.Export(gz); err != nil {
		gz.Close()
		f.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return f.Close()
}
