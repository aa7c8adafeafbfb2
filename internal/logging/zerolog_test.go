package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, zerologLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, zerologLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, zerologLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, zerologLevel("chatty"))
}

func TestNewZerolog_WritesConsoleAndFile(t *testing.T) {
	stdout := captureStdout(t)
	file := &syncBuffer{}

	logger := NewZerolog("info", file, func(e *zerolog.Event) { e.Uint64("tick", 7) })
	logger.Info().Str("backend", "sqlite").Msg("Connected to database")
	logger.Debug().Msg("hidden")

	assert.Contains(t, stdout.String(), "Connected to database")
	assert.NotContains(t, stdout.String(), "hidden")

	out := file.String()
	assert.Contains(t, out, "Connected to database")
	assert.Contains(t, out, "backend=sqlite")
	assert.Contains(t, out, "tick=7")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "\x1b[")
}

func TestNewZerolog_ConsoleOnly(t *testing.T) {
	stdout := captureStdout(t)

	logger := NewZerolog("debug", nil, nil)
	logger.Debug().Msg("verbose")

	assert.Contains(t, stdout.String(), "verbose")
}
