package sqlitestorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephaestus-engine/hephaestus/internal/config"
	"github.com/hephaestus-engine/hephaestus/internal/database"
	gormstorage "github.com/hephaestus-engine/hephaestus/internal/storage/gorm"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

func countFrames(t *testing.T, path string) int64 {
	t.Helper()
	db, err := database.OpenSQLite(path)
	require.NoError(t, err)
	var n int64
	require.NoError(t, db.Model(&gormstorage.Frame{}).Count(&n).Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.Close()
	return n
}

func TestBackend_DumpOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.db")
	b, err := New(config.StorageConfig{
		FlushInterval: time.Hour,
		SQLite:        config.SQLiteConfig{Path: path},
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.StartSession(&core.Session{StartedAt: time.Now(), ProtocolVersion: "v2"}))
	for tick := uint64(1); tick <= 3; tick++ {
		require.NoError(t, b.RecordFrame(&core.Frame{View: "v", Model: "golem", Tick: tick, Time: time.Now()}))
	}
	require.NoError(t, b.Close())

	assert.EqualValues(t, 3, countFrames(t, path))
}

func TestBackend_PeriodicDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.db")
	b, err := New(config.StorageConfig{
		FlushInterval: time.Hour,
		SQLite:        config.SQLiteConfig{Path: path, DumpInterval: 10 * time.Millisecond},
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })

	require.NoError(t, b.StartSession(&core.Session{StartedAt: time.Now()}))
	require.NoError(t, b.RecordFrame(&core.Frame{View: "v", Tick: 1, Time: time.Now()}))

	assert.Eventually(t, func() bool {
		db, err := database.OpenSQLite(path)
		if err != nil {
			return false
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}()
		var n int64
		return db.Model(&gormstorage.Frame{}).Count(&n).Error == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBackend_NoPathKeepsMemoryOnly(t *testing.T) {
	b, err := New(config.StorageConfig{FlushInterval: time.Hour}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordFrame(&core.Frame{View: "v", Tick: 1, Time: time.Now()}))
	require.NoError(t, b.Flush())

	frames, err := b.LoadFrames("v")
	require.NoError(t, err)
	assert.Len(t, frames, 1)
	require.NoError(t, b.Close())
}
