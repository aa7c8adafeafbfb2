package postgres

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/hephaestus-engine/hephaestus/internal/config"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

func TestBackend_UninitializedRejectsWrites(t *testing.T) {
	b := New(config.StorageConfig{}, config.DBConfig{}, nil, zerolog.Nop())

	assert.Error(t, b.StartSession(&core.Session{}))
	assert.Error(t, b.RecordFrame(&core.Frame{}))
	assert.NoError(t, b.Close())
}

func TestBackend_InitFailsWithoutServer(t *testing.T) {
	b := New(config.StorageConfig{}, config.DBConfig{
		Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "d",
	}, nil, zerolog.Nop())

	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}
