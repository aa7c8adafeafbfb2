// Package memory is a recording adapter. It keeps every applied batch in
// memory, which makes it the adapter of choice for tests and dry runs.
package memory

import (
	"fmt"
	"slices"
	"sync"

	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// Version is the protocol identifier served by this adapter.
const Version = "memory"

// Batch is one Apply call.
type Batch struct {
	View    core.ViewID
	Intents []core.Intent
}

// Adapter records batches per viewer.
type Adapter struct {
	mu      sync.Mutex
	batches map[core.ViewerID][]Batch
	failing map[core.ViewerID]bool
}

// New returns an empty recording adapter.
func New() *Adapter {
	return &Adapter{
		batches: make(map[core.ViewerID][]Batch),
		failing: make(map[core.ViewerID]bool),
	}
}

// Version returns "memory".
func (a *Adapter) Version() string {
	return Version
}

// Apply records intents for viewer, or fails if viewer was marked with Fail.
func (a *Adapter) Apply(viewer core.ViewerID, view core.ViewID, intents []core.Intent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failing[viewer] {
		return fmt.Errorf("viewer %s unreachable", viewer)
	}
	if len(intents) == 0 {
		return nil
	}
	a.batches[viewer] = append(a.batches[viewer], Batch{View: view, Intents: slices.Clone(intents)})
	return nil
}

// Fail makes every later Apply to viewer return an error.
func (a *Adapter) Fail(viewer core.ViewerID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failing[viewer] = true
}

// Batches returns the batches recorded for viewer in delivery order.
func (a *Adapter) Batches(viewer core.ViewerID) []Batch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.batches[viewer])
}

// Intents returns the recorded intents for viewer about view, flattened.
func (a *Adapter) Intents(viewer core.ViewerID, view core.ViewID) []core.Intent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []core.Intent
	for _, b := range a.batches[viewer] {
		if b.View == view {
			out = append(out, b.Intents...)
		}
	}
	return out
}

// Reset forgets everything recorded so far.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.batches)
}
