// Package gormstorage implements storage.Backend on gorm with an internal
// queue and a background writer goroutine. The SQLite and Postgres backends
// wrap it.
package gormstorage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/hephaestus-engine/hephaestus/internal/queue"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is not positive.
const DefaultFlushInterval = time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	frames    queue.Queue[Frame]
	sessionID atomic.Uint64

	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	flushMu   sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend requires a database")
	}

	b.deps.Logger.Info("Migrating schema")
	if err := b.deps.DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.closeOnce.Do(func() {
		close(b.stopChan)
		<-b.done
	})
	return nil
}

// StartSession inserts the session row synchronously so frames can refer to it.
func (b *Backend) StartSession(s *core.Session) error {
	row := Session{
		StartedAt:       s.StartedAt,
		ProtocolVersion: s.ProtocolVersion,
		TickIntervalMs:  s.TickInterval.Milliseconds(),
	}
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	s.ID = row.ID
	b.sessionID.Store(uint64(row.ID))
	return nil
}

// RecordFrame converts f to a row and queues it.
func (b *Backend) RecordFrame(f *core.Frame) error {
	intents, err := json.Marshal(f.Intents)
	if err != nil {
		return fmt.Errorf("failed to encode intents: %w", err)
	}
	b.frames.Push(Frame{
		ViewID:      string(f.View),
		Model:       f.Model,
		Tick:        f.Tick,
		RecordedAt:  f.Time,
		IntentCount: len(f.Intents),
		Intents:     intents,
	})
	return nil
}

// Pending returns the number of frames waiting for the writer.
func (b *Backend) Pending() int {
	return b.frames.Len()
}

// Flush writes all queued frames in one transaction. On failure the frames
// are put back at the head of the queue.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	items := b.frames.Drain()
	if len(items) == 0 {
		return nil
	}

	sessionID := uint(b.sessionID.Load())
	for i := range items {
		items[i].SessionID = sessionID
	}

	err := b.deps.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&items).Error
	})
	if err != nil {
		for i := range items {
			items[i].ID = 0
		}
		b.frames.Requeue(items...)
		return fmt.Errorf("failed to write %d frames: %w", len(items), err)
	}
	return nil
}

// LoadFrames reads back the frames of view in the current session in tick order.
func (b *Backend) LoadFrames(view core.ViewID) ([]core.Frame, error) {
	var rows []Frame
	err := b.deps.DB.
		Where("session_id = ? AND view_id = ?", uint(b.sessionID.Load()), string(view)).
		Order("tick ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load frames: %w", err)
	}

	out := make([]core.Frame, 0, len(rows))
	for _, r := range rows {
		f := core.Frame{View: core.ViewID(r.ViewID), Model: r.Model, Tick: r.Tick, Time: r.RecordedAt}
		if err := json.Unmarshal(r.Intents, &f.Intents); err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", r.ID, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// writeLoop periodically drains the frame queue into the DB.
func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error("Final frame flush failed", "error", err, "pending", b.Pending())
			}
			return
		case <-ticker.C:
			start := time.Now()
			n := b.Pending()
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error("Frame flush failed", "error", err)
				continue
			}
			if n > 0 {
				b.deps.Logger.Debug("Flushed frames", "count", n, "duration", time.Since(start))
			}
		}
	}
}
