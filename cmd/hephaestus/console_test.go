package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephaestus-engine/hephaestus/internal/config"
	"github.com/hephaestus-engine/hephaestus/internal/dispatcher"
	"github.com/hephaestus-engine/hephaestus/internal/registry"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	d.Register(":ECHO:", func(e dispatcher.Event) (any, error) {
		return strings.Join(e.Args, " "), nil
	})
	d.Register(":FAIL:", func(dispatcher.Event) (any, error) {
		return nil, errors.New("unknown view")
	})
	d.Register(":LIST:", func(dispatcher.Event) (any, error) {
		return []string{"a", "b"}, nil
	})
	d.Register(":VOID:", func(dispatcher.Event) (any, error) {
		return nil, nil
	})
	return d
}

func TestRunConsole(t *testing.T) {
	d := newDispatcher(t)
	in := strings.NewReader(":ECHO: hello world\n\n   \n:FAIL: x\n:LIST:\n:VOID:\n:NOPE:\n")
	var out bytes.Buffer

	runConsole(context.Background(), in, &out, d, slog.Default())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, ":ECHO: OK hello world", lines[0])
	assert.Equal(t, ":FAIL: ERROR unknown view", lines[1])
	assert.Equal(t, `:LIST: OK ["a","b"]`, lines[2])
	assert.Equal(t, ":VOID: OK", lines[3])
	assert.True(t, strings.HasPrefix(lines[4], ":NOPE: ERROR "), lines[4])
}

func TestRunConsole_StopsWhenCancelled(t *testing.T) {
	d := newDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer

	runConsole(ctx, strings.NewReader(":ECHO: hi\n"), &out, d, slog.Default())
	assert.Empty(t, out.String())
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-c", "/etc/heph", "--models", "assets", "--listen", ":9000", "--log-level", "debug", "--console=false"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/heph", o.configDir)
	assert.Equal(t, "assets", o.modelsDir)
	assert.Equal(t, ":9000", o.listen)
	assert.Equal(t, "debug", o.logLevel)
	assert.False(t, o.console)
	assert.False(t, o.version)

	o, err = parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, ".", o.configDir)
	assert.True(t, o.console)

	_, err = parseFlags([]string{"--bogus"})
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.LoadDefaults()

	applyOverrides(options{listen: ":9999"})
	assert.Equal(t, ":9999", viper.GetString("server.listen"))
	assert.Equal(t, "./models", viper.GetString("models.dir"))
	assert.Equal(t, "info", viper.GetString("logLevel"))
}

func TestLoadModels(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lamp.model.json"), []byte(`{"bones": [{"name": "root"}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.model.json"), []byte(`{`), 0o644))

	reg := registry.New()
	loadModels(reg, dir, slog.Default())

	assert.Equal(t, []string{"lamp"}, reg.Models())
}
