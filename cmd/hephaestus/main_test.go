package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephaestus-engine/hephaestus/internal/api"
	"github.com/hephaestus-engine/hephaestus/internal/config"
	"github.com/hephaestus-engine/hephaestus/internal/storage/memory"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

func archiveServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var uploads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthcheck":
		case api.UploadPath:
			if assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				assert.Equal(t, "v2", r.FormValue("protocol"))
				assert.Equal(t, "9", r.FormValue("ticks"))
				uploads.Add(1)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &uploads
}

func TestCloseStorage_UploadsExport(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.LoadDefaults()
	srv, uploads := archiveServer(t)
	viper.Set("archive.url", srv.URL)

	path := filepath.Join(t.TempDir(), "session.json")
	b := memory.New(config.MemoryConfig{ExportPath: path}, nil)
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(&core.Session{StartedAt: time.Now()}))

	closeStorage(b, "v2", time.Now(), func() uint64 { return 9 }, slog.Default())

	assert.FileExists(t, path)
	assert.Equal(t, int32(1), uploads.Load())
}

func TestCloseStorage_NoArchiveConfigured(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.LoadDefaults()
	_, uploads := archiveServer(t)

	path := filepath.Join(t.TempDir(), "session.json")
	b := memory.New(config.MemoryConfig{ExportPath: path}, nil)
	require.NoError(t, b.Init())

	closeStorage(b, "v2", time.Now(), func() uint64 { return 9 }, slog.Default())

	assert.FileExists(t, path)
	assert.Zero(t, uploads.Load())
}
