// Package adapter selects the protocol adapter that turns bone intents into
// wire messages for a given protocol version.
package adapter

import (
	"fmt"

	"github.com/hephaestus-engine/hephaestus/internal/adapter/cborv2"
	"github.com/hephaestus-engine/hephaestus/internal/adapter/jsonv1"
	"github.com/hephaestus-engine/hephaestus/internal/adapter/memory"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
	"github.com/hephaestus-engine/hephaestus/pkg/streaming"
)

// Adapter applies an ordered intent sequence for one view to one viewer.
// Implementations must preserve the order they are given.
type Adapter interface {
	Version() string
	Apply(viewer core.ViewerID, view core.ViewID, intents []core.Intent) error
}

// Compile-time interface checks.
var (
	_ Adapter = (*jsonv1.Adapter)(nil)
	_ Adapter = (*cborv2.Adapter)(nil)
	_ Adapter = (*memory.Adapter)(nil)
)

// Versions lists the protocol versions New accepts.
func Versions() []string {
	return []string{jsonv1.Version, cborv2.Version, memory.Version}
}

// New returns the adapter for version writing through s. The memory adapter
// ignores s.
func New(version string, s streaming.Sender) (Adapter, error) {
	switch version {
	case jsonv1.Version:
		return jsonv1.New(s), nil
	case cborv2.Version:
		return cborv2.New(s), nil
	case memory.Version:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported protocol version %q (supported: %v)", version, Versions())
	}
}
