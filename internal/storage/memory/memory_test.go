package memory

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephaestus-engine/hephaestus/internal/config"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

func frame(view core.ViewID, tick uint64, intents ...core.Intent) *core.Frame {
	return &core.Frame{View: view, Model: "golem", Tick: tick, Time: time.Unix(int64(tick), 0).UTC(), Intents: intents}
}

func TestRecordFrame_GroupsByView(t *testing.T) {
	b := New(config.MemoryConfig{}, nil)
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(&core.Session{ProtocolVersion: "v2"}))

	require.NoError(t, b.RecordFrame(frame("b", 1, core.Create("body", core.IdentityTransform))))
	require.NoError(t, b.RecordFrame(frame("a", 1, core.Create("body", core.IdentityTransform))))
	require.NoError(t, b.RecordFrame(frame("b", 2, core.Remove("body"))))

	assert.Equal(t, []core.ViewID{"b", "a"}, b.Views())
	assert.Equal(t, 3, b.FrameCount())

	frames := b.Frames("b")
	require.Len(t, frames, 2)
	assert.EqualValues(t, 1, frames[0].Tick)
	assert.Equal(t, core.IntentRemove, frames[1].Intents[0].Kind)
	assert.Nil(t, b.Frames("missing"))
	assert.Equal(t, "v2", b.Session().ProtocolVersion)
	require.NoError(t, b.Close())
}

func TestRecordFrame_CopiesIntents(t *testing.T) {
	b := New(config.MemoryConfig{}, nil)
	intents := []core.Intent{core.Create("body", core.IdentityTransform)}
	require.NoError(t, b.RecordFrame(&core.Frame{View: "v", Intents: intents}))

	intents[0].Bone = "mutated"
	assert.Equal(t, "body", b.Frames("v")[0].Intents[0].Bone)
}

func TestStartSession_Resets(t *testing.T) {
	b := New(config.MemoryConfig{}, nil)
	require.NoError(t, b.RecordFrame(frame("v", 1)))
	assert.Nil(t, b.Session())

	require.NoError(t, b.StartSession(&core.Session{ID: 7}))
	assert.Zero(t, b.FrameCount())
	assert.Empty(t, b.Views())
	assert.EqualValues(t, 7, b.Session().ID)
}

func TestExport(t *testing.T) {
	b := New(config.MemoryConfig{}, nil)
	require.NoError(t, b.StartSession(&core.Session{ProtocolVersion: "v1"}))
	require.NoError(t, b.RecordFrame(frame("v", 3, core.Update("arm", core.IdentityTransform))))

	var buf bytes.Buffer
	require.NoError(t, b.Export(&buf))

	var out Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.NotNil(t, out.Session)
	assert.Equal(t, "v1", out.Session.ProtocolVersion)
	require.Len(t, out.Views, 1)
	assert.Equal(t, core.ViewID("v"), out.Views[0].View)
	require.Len(t, out.Views[0].Frames, 1)
	assert.Equal(t, "arm", out.Views[0].Frames[0].Intents[0].Bone)
}

func TestClose_WritesExportFile(t *testing.T) {
	tests := []struct {
		name string
		file string
		gz   bool
	}{
		{"plain", "rec.json", false},
		{"gzip", "nested/rec.json.gz", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			b := New(config.MemoryConfig{ExportPath: path}, nil)
			require.NoError(t, b.RecordFrame(frame("v", 1, core.Create("body", core.IdentityTransform))))
			require.NoError(t, b.Close())
			assert.Equal(t, path, b.ExportedFilePath())

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			dec := json.NewDecoder(f)
			if tt.gz {
				gz, err := gzip.NewReader(f)
				require.NoError(t, err)
				dec = json.NewDecoder(gz)
			}
			var out Export
			require.NoError(t, dec.Decode(&out))
			require.Len(t, out.Views, 1)
			assert.Len(t, out.Views[0].Frames, 1)
		})
	}
}

func TestConcurrentRecord(t *testing.T) {
	b := New(config.MemoryConfig{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(view core.ViewID) {
			defer wg.Done()
			for tick := uint64(1); tick <= 50; tick++ {
				b.RecordFrame(frame(view, tick))
			}
		}(core.ViewID(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 400, b.FrameCount())
	assert.Len(t, b.Views(), 8)
}
