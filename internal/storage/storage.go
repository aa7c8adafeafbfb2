// Package storage records per-tick view diffs for offline inspection.
package storage

import "github.com/hephaestus-engine/hephaestus/pkg/core"

// Backend is the interface all storage implementations must satisfy.
// It satisfies engine.Recorder.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// StartSession begins a recording. Backends that persist sessions
	// assign s.ID.
	StartSession(s *core.Session) error

	// RecordFrame stores one view's diff for one tick. Implementations must
	// not retain f.Intents beyond the call.
	RecordFrame(f *core.Frame) error
}

// Exporter is an optional interface for backends that write a file on Close.
type Exporter interface {
	ExportedFilePath() string
}

// Nop discards everything.
type Nop struct{}

func (Nop) Init() error                      { return nil }
func (Nop) Close() error                     { return nil }
func (Nop) StartSession(*core.Session) error { return nil }
func (Nop) RecordFrame(*core.Frame) error    { return nil }
